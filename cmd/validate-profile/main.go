// Command validate-profile checks transfer pacing profile files.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/blockedby/relaybot/internal/transfer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("No files to check.")
		os.Exit(0)
	}

	failed := false
	for _, path := range os.Args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("❌ Failed to read %s: %v\n", path, err)
			failed = true
			continue
		}

		profiles, err := transfer.ParseProfiles(data)
		if err != nil {
			fmt.Printf("❌ Invalid profiles in %s: %v\n", path, err)
			failed = true
			continue
		}

		names := make([]string, 0, len(profiles))
		for name := range profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("✅ %s is valid\n", path)
		for _, name := range names {
			p := profiles[name]
			fmt.Printf("   %s: %s per file, batch of %d\n", name, p.PerFileDelay, p.BatchSize)
		}
	}

	if failed {
		os.Exit(1)
	}
}
