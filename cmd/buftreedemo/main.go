// Command buftreedemo exercises a buftree.Tree backed by a memory-mapped
// file, demonstrating that the tree survives a process restart without any
// explicit save/load step beyond reopening the same bytes.
package main

import (
	"flag"
	"fmt"
	"log"

	"buftree"
	"buftree/internal/mmfile"
)

func main() {
	path := flag.String("path", "data/catalog.tree", "backing file for the tree")
	size := flag.Int64("size", 1<<20, "file size to map, in bytes, if it does not already exist")
	flag.Parse()

	mf, err := mmfile.Open(*path, *size)
	if err != nil {
		log.Fatalf("buftreedemo: open %s: %v", *path, err)
	}
	defer mf.Close()

	tr, err := buftree.Load[uint64, float64](mf.Bytes())
	if err != nil {
		log.Printf("buftreedemo: %s has no tree yet, initializing: %v", *path, err)
		tr, err = buftree.New[uint64, float64](mf.Bytes())
		if err != nil {
			log.Fatalf("buftreedemo: new: %v", err)
		}
	}

	catalog := map[uint64]float64{
		1001: 2.50,
		1002: 1.10,
		1003: 4.00,
		1004: 0.90,
		1005: 2.50,
	}

	fmt.Println("Inserting catalog prices...")
	for id, price := range catalog {
		if _, _, err := tr.Insert(id, price); err != nil {
			log.Fatalf("buftreedemo: insert %d: %v", id, err)
		}
	}

	fmt.Println("\nCatalog contents:")
	for id, price := range tr.Iter() {
		fmt.Printf("%d -> %.2f\n", id, price)
	}

	lookup := []uint64{1003, 9999}
	fmt.Println("\nLookups:")
	for _, id := range lookup {
		if price, ok := tr.Get(id); ok {
			fmt.Printf("found: %d -> %.2f\n", id, price)
		} else {
			fmt.Printf("not found: %d\n", id)
		}
	}

	fmt.Println("\nRemoving 1001...")
	if _, ok := tr.Remove(1001); !ok {
		log.Printf("buftreedemo: 1001 was already absent")
	}

	if err := mf.Flush(); err != nil {
		log.Fatalf("buftreedemo: flush: %v", err)
	}
	fmt.Printf("\nSaved to %s; rerun to see the tree reloaded from disk.\n", *path)
}
