package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"wanderfield/simcore/tools/captureprobe"
)

func main() {
	root := flag.String("dir", ".", "directory containing capture bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	summaries, err := captureprobe.Scan(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := captureprobe.MarshalSummaries(summaries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, summary := range summaries {
		fmt.Printf("%s (session %s)\n", summary.Path, summary.SessionID)
		if summary.World != "" {
			fmt.Printf("  world: %s\n", summary.World)
		}
		fmt.Printf("  events: %d  frames: %d\n", summary.Events, summary.Frames)
		if summary.Frames > 0 {
			fmt.Printf("  ticks: %d to %d over %.0f ms simulated\n", summary.FirstTick, summary.LastTick, summary.SimSpanMs)
		}
		if len(summary.EventKinds) > 0 {
			kinds := make([]string, 0, len(summary.EventKinds))
			for kind := range summary.EventKinds {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			fmt.Printf("  kinds:\n")
			for _, kind := range kinds {
				fmt.Printf("    %s: %d\n", kind, summary.EventKinds[kind])
			}
		}
	}
}
