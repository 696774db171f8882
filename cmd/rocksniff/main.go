package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rocksniff/addon"
	"rocksniff/attach"
	"rocksniff/cache"
	"rocksniff/config"
	"rocksniff/diag"
	"rocksniff/process"
	"rocksniff/process_blob"
	"rocksniff/sniffer"
	"rocksniff/telemetry"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath, "Settings file")
	processFlag := flag.String("process", "", "Process name to attach to (overrides settings)")
	pidFlag := flag.Int("pid", 0, "Process ID to attach to instead of searching by name")
	editionFlag := flag.String("edition", "", "Game edition: beta, remastered or learn_and_play")
	contentFlag := flag.String("content", "", "Game directory holding songs.psarc and dlc/")
	dumpFlag := flag.String("dump", "", "Replay a saved dump instead of a live process")
	diagFlag := flag.String("diag", "", "Comma separated diagnostics to enable, or \"all\"")
	addonFlag := flag.String("addon", "", "Serve the addon endpoint on this address")
	tokenFlag := flag.String("token", "", "Print an addon token for this subject and exit")
	writeConfigFlag := flag.Bool("write-config", false, "Write the effective settings to --config and exit")
	flag.Parse()

	settings, err := config.Load(*configFlag)
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}
	if *processFlag != "" {
		settings.ProcessName = *processFlag
	}
	if *editionFlag != "" {
		settings.Edition = telemetry.Edition(*editionFlag)
	}
	if *contentFlag != "" {
		settings.ContentDir = *contentFlag
	}
	if *addonFlag != "" {
		settings.Addon.Enabled = true
		settings.Addon.Listen = *addonFlag
	}
	if *diagFlag != "" {
		toggles, ok := diag.Parse(*diagFlag)
		if !ok {
			fmt.Printf("Error: unknown diagnostic in %q, valid: %v\n", *diagFlag, diag.All)
			os.Exit(1)
		}
		if settings.Diagnostics == nil {
			settings.Diagnostics = map[diag.Toggle]bool{}
		}
		for t, on := range toggles {
			settings.Diagnostics[t] = on
		}
	}
	if err := settings.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if *writeConfigFlag {
		if err := config.Save(*configFlag, settings); err != nil {
			fmt.Printf("Error writing settings: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Settings written to %s\n", *configFlag)
		return
	}

	if *tokenFlag != "" {
		if settings.Addon.Secret == "" {
			fmt.Println("Error: addon.secret is not set")
			os.Exit(1)
		}
		token, err := addon.NewToken(settings.Addon.Secret, *tokenFlag, 30*24*time.Hour)
		if err != nil {
			fmt.Printf("Error signing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	d := diag.New(settings.Diagnostics)
	log := d.Logger("rocksniff")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem, exe, err := open(ctx, settings, *pidFlag, *dumpFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()

	profile, err := settings.Profile()
	if err != nil {
		fmt.Printf("Error loading memory profile: %v\n", err)
		os.Exit(1)
	}

	songs, err := cache.Open(settings.Cache, d)
	if err != nil {
		fmt.Printf("Error opening %s cache: %v\n", settings.Cache.Backend, err)
		os.Exit(1)
	}
	defer songs.Close()

	contentDir := settings.ContentDir
	if contentDir == "" && exe != "" {
		contentDir = filepath.Dir(exe)
	}

	opts := sniffer.DefaultOptions()
	opts.ContentDir = contentDir
	opts.EnableAutoEnumeration = settings.EnableAutoEnumeration
	opts.Parallelism = settings.Parallelism

	s := sniffer.New(telemetry.NewReader(mem, profile, d), songs, newConsole(log), opts, d)
	if err := s.Start(ctx); err != nil {
		fmt.Printf("Error starting sniffer: %v\n", err)
		os.Exit(1)
	}
	log.Infoln("Sniffing", settings.Edition, "edition, content from", contentDir)

	var server *addon.Server
	if settings.Addon.Enabled {
		server = addon.New(s, addon.Options{Secret: settings.Addon.Secret}, d)
		go func() {
			if err := server.Start(settings.Addon.Listen); err != nil {
				log.Warn("Addon server stopped:", err)
			}
		}()
	}

	<-ctx.Done()
	log.Infoln("Shutting down")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
	}
	s.Stop()
}

// open returns the memory source and, for live processes, the game
// executable path.
func open(ctx context.Context, settings config.Settings, pid int, dump string) (process.MemoryAccess, string, error) {
	if dump != "" {
		im, err := process_blob.Load(dump)
		if err != nil {
			return nil, "", fmt.Errorf("loading dump from %s: %w", dump, err)
		}
		return im, "", nil
	}

	if pid != 0 {
		mem, err := attach.Open(process.ProcessID(pid), settings.ProcessName)
		if err != nil {
			return nil, "", fmt.Errorf("attaching to process %d: %w", pid, err)
		}
		return mem, "", nil
	}

	mem, info, err := attach.ByName(ctx, settings.ProcessName)
	if err != nil {
		return nil, "", err
	}
	return mem, info.Exe, nil
}
