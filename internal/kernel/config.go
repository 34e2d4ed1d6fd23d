// Package kernel wires the subsystem packages (capobj, cspace, vspace,
// ipc, sched, trap) together into one bootable instance, so command
// front ends can all build on the same boot sequence.
package kernel

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Fixed virtual-memory layout, established at boot and never relocated.
// These are placement constants for the harness's bookkeeping
// only; there is no real MMU enforcing them in a hosted process.
const (
	KernelStackGuard = 0xFFFF_FFFF_7000_0000
	BootInfoAddr     = 0xFFFF_FFFF_4000_0000
	PhysMemOffset    = 0xFFFF_8000_0000_0000
	RecursivePML4    = 0xFFFF_FF00_0000_0000
	KernelStackSize  = 128 * 1024
)

// UntypedRegionConfig describes one initial untyped region to hand to
// user space at boot, decoded from the [[untyped]] array of tables in the
// boot configuration file.
type UntypedRegionConfig struct {
	Paddr   uint64 `toml:"paddr"`
	BitSize uint8  `toml:"bit_size"`
	Device  bool   `toml:"device"`
}

// BootConfig is decoded from a TOML boot configuration file: the kernel's
// boot-time parameters (tick frequency, ready-queue bound, arena size)
// plus the initial untyped region table. LoadBootConfig fills every
// zero-valued field from DefaultBootConfig; Boot uses the struct as given.
type BootConfig struct {
	TickHz          int                   `toml:"tick_hz"`
	ReadyQueueBound int                   `toml:"ready_queue_bound"`
	ArenaSize       int                   `toml:"arena_size"`
	Untyped         []UntypedRegionConfig `toml:"untyped"`
	BootImagePath   string                `toml:"boot_image_path"`
}

// DefaultBootConfig is the stock configuration: 100 Hz tick, ready-queue
// bound 64, and a single 16 MiB untyped region starting past a 1 MiB
// reservation for boot-image/kernel data.
func DefaultBootConfig() BootConfig {
	return BootConfig{
		TickHz:          100,
		ReadyQueueBound: 64,
		ArenaSize:       32 << 20,
		Untyped: []UntypedRegionConfig{
			{Paddr: 1 << 20, BitSize: 24, Device: false}, // 16 MiB
		},
	}
}

// LoadBootConfig decodes a TOML boot configuration file at path, filling
// in any zero-valued field from DefaultBootConfig. A missing file is not
// an error: DefaultBootConfig is returned as-is, the same fallback
// containerdUtils.GetDataRoot applies when none of its candidate config
// paths exist.
func LoadBootConfig(path string) (BootConfig, error) {
	cfg := DefaultBootConfig()
	if path == "" {
		return cfg, nil
	}
	var parsed BootConfig
	meta, err := toml.DecodeFile(path, &parsed)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return BootConfig{}, err
	}
	_ = meta // decode metadata unused; every field here is optional

	if parsed.TickHz != 0 {
		cfg.TickHz = parsed.TickHz
	}
	if parsed.ReadyQueueBound != 0 {
		cfg.ReadyQueueBound = parsed.ReadyQueueBound
	}
	if parsed.ArenaSize != 0 {
		cfg.ArenaSize = parsed.ArenaSize
	}
	if len(parsed.Untyped) != 0 {
		cfg.Untyped = parsed.Untyped
	}
	if parsed.BootImagePath != "" {
		cfg.BootImagePath = parsed.BootImagePath
	}
	return cfg, nil
}
