package main

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/xcoin/miner/accel"
	"github.com/xcoin/miner/hasher"
	"github.com/xcoin/miner/shared"
)

// Nonces checked against the reference digest on every tier.
const verifyNonces = 1 << 10

func main() {
	runtime.MemProfileRate = 0
	println("Memory profiling disabled.")

	cfg, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}

	if cfg.CPU {
		dir, err := os.Getwd()
		if err != nil {
			log.Fatal("cant get current dir", err)
		}

		profFilePath := path.Join(dir, "./CPU.prof")
		fmt.Printf("CPU profile: %s\n", profFilePath)

		f, err := os.Create(profFilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()

		println("Cpu profiling enabled and started...")
	}

	message := make([]byte, cfg.MessageLen)
	if _, err := rand.Read(message); err != nil {
		panic("no entropy")
	}

	caps := accel.CPUDetector{}.Detect()
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = caps.Tiers()
	}
	fmt.Printf("capabilities: %s, threads: %d, message: %d bytes\n", caps, accel.HardwareThreads(), len(message))

	failed := false
	for _, tier := range tiers {
		if !caps.Has(tier) {
			fmt.Printf("%-7s unsupported\n", tier)
			continue
		}
		h := hasher.New(tier, message)
		if err := verify(h, message); err != nil {
			fmt.Printf("%-7s %v\n", tier, err)
			failed = true
			continue
		}
		hashes, elapsed := measure(h, cfg.Duration)
		fmt.Printf("%-7s %12.0f hashes/sec (%d hashes in %s)\n", tier, float64(hashes)/elapsed.Seconds(), hashes, elapsed)
	}
	if failed {
		os.Exit(1)
	}
}

func verify(h hasher.Hasher, message []byte) error {
	ref := shared.NewPowHasher(message)
	var (
		digest [hasher.Size]byte
		want   []byte
	)
	for nonce := uint64(0); nonce < verifyNonces; nonce++ {
		h.Sum(nonce, &digest)
		want = ref.Hash(nonce, want[:0])
		if !bytes.Equal(digest[:], want) {
			return fmt.Errorf("digest mismatch at nonce %d: got %x, want %x", nonce, digest, want)
		}
	}
	return nil
}

func measure(h hasher.Hasher, d time.Duration) (uint64, time.Duration) {
	const batch = 1 << 12
	var (
		digest [hasher.Size]byte
		nonce  uint64
	)
	start := time.Now()
	for time.Since(start) < d {
		for end := nonce + batch; nonce < end; nonce++ {
			h.Sum(nonce, &digest)
		}
	}
	return nonce, time.Since(start)
}
