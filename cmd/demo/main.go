// Command demo wires a disk manager, a buffer pool, and an extendible
// hash table together and runs a scripted insert/lookup/split/remove
// sequence, logging what happens at each step. It is not a SQL shell
// and takes no input beyond its one flag.
package main

import (
	"flag"
	"log"
	"os"

	"bufhash/pkg/buffer"
	"bufhash/pkg/storage/disk"
	"bufhash/pkg/storage/hash"
	"bufhash/pkg/storage/page"
	"bufhash/pkg/wal"
)

func main() {
	poolSize := flag.Int("pages", 16, "buffer pool frame count")
	flag.Parse()

	dbFile, err := os.CreateTemp("", "bufhash-demo-*.db")
	if err != nil {
		log.Fatalf("create db file: %v", err)
	}
	path := dbFile.Name()
	dbFile.Close()
	defer os.Remove(path)

	dm, err := disk.NewFileManager(path)
	if err != nil {
		log.Fatalf("open disk manager: %v", err)
	}
	defer dm.Close()

	bp := buffer.NewInstance(*poolSize, dm, wal.NewNoopManager(), 1, 0)

	tbl, err := hash.NewTable(bp, hash.DefaultHash, hash.DefaultCmp)
	if err != nil {
		log.Fatalf("new table: %v", err)
	}

	log.Printf("inserting %d keys into a fresh table (bucket capacity %d)", page.BucketArraySize+1, page.BucketArraySize)
	for i := int64(0); i <= page.BucketArraySize; i++ {
		ok, err := tbl.Insert(i, valueFor(i))
		if err != nil {
			log.Fatalf("insert %d: %v", i, err)
		}
		if !ok {
			log.Fatalf("insert %d: unexpected duplicate", i)
		}
	}
	log.Printf("insert %d forced a bucket split", page.BucketArraySize)

	for _, key := range []int64{0, page.BucketArraySize} {
		values, err := tbl.Get(key)
		if err != nil {
			log.Fatalf("get %d: %v", key, err)
		}
		log.Printf("get(%d) -> %d value(s)", key, len(values))
	}

	removed := int64(1)
	ok, err := tbl.Remove(removed, valueFor(removed))
	if err != nil {
		log.Fatalf("remove %d: %v", removed, err)
	}
	log.Printf("remove(%d) -> %v", removed, ok)

	values, err := tbl.Get(removed)
	if err != nil {
		log.Fatalf("get %d: %v", removed, err)
	}
	log.Printf("get(%d) after removal -> %d value(s)", removed, len(values))

	bp.FlushAllPages()
	log.Printf("flushed every dirty resident page to %s", path)
}

func valueFor(key int64) page.Value {
	var v page.Value
	for i := 0; i < 8; i++ {
		v[i] = byte(key >> (8 * i))
	}
	return v
}
