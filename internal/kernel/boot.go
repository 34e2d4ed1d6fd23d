package kernel

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ricoqos/chick/internal/cspace"
	"github.com/ricoqos/chick/internal/harness"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/objtable"
	"github.com/ricoqos/chick/internal/sched"
	"github.com/ricoqos/chick/internal/trap"
	"github.com/ricoqos/chick/internal/vspace"
	"github.com/sirupsen/logrus"
)

// Instance bundles one complete booted kernel: the object table, the
// ASID pool, the per-core executor, the syscall dispatcher, the physical
// memory arena, and the root CNode/untyped capabilities handed to the
// first user thread — everything main() needs to run the loop.
type Instance struct {
	Config  BootConfig
	Log     *logrus.Entry
	Arena   *harness.Arena
	Objects *objtable.Registry
	ASIDs   *vspace.ASIDPool
	Exec    *sched.Executor
	Kernel  *trap.Kernel

	RootCNode *cspace.CNode
	Untypeds  []*cspace.Untyped

	id uuid.UUID // debug/trace correlation id, log fields only
}

// Boot constructs a complete Instance from cfg: mmaps the physical arena,
// builds the root CNode (a single flat CNode sized to hold one slot per
// configured untyped region plus headroom), registers each configured
// untyped region's backing bytes, and wires cspace's package-var registry
// to the object table.
func Boot(cfg BootConfig, log *logrus.Logger) (*Instance, error) {
	if log == nil {
		log = logrus.New()
	}
	bootID := uuid.New()
	blog := log.WithFields(logrus.Fields{"subsystem": "boot", "boot_id": bootID})

	arena, err := harness.NewArena(cfg.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot arena: %w", err)
	}

	reg := objtable.New()
	cspace.SetRegistry(reg)

	asids := vspace.NewASIDPool()
	exec := sched.NewExecutor(cfg.ReadyQueueBound)
	k := trap.NewKernel(reg, asids, exec)

	rootRadix := uint8(8) // 256 slots: headroom for boot wiring plus user retypes
	root := cspace.NewCNode(0, rootRadix, 32-rootRadix, 0)
	reg.Register(root.Paddr, root)

	inst := &Instance{
		Config:    cfg,
		Log:       blog,
		Arena:     arena,
		Objects:   reg,
		ASIDs:     asids,
		Exec:      exec,
		Kernel:    k,
		RootCNode: root,
		id:        bootID,
	}

	for i, ur := range cfg.Untyped {
		if i >= len(root.Slots) {
			blog.WithField("region", i).Error("more untyped regions than root CNode slots")
			return nil, kernelerr.OutOfMemory
		}
		size := uint64(1) << ur.BitSize
		backing, sysErr := arena.Slice(ur.Paddr, size)
		if sysErr.Code() != 0 {
			blog.WithFields(logrus.Fields{
				"paddr": ur.Paddr, "bit_size": ur.BitSize, "err": sysErr.String(),
			}).Error("untyped region out of arena bounds")
			return nil, sysErr
		}
		u := cspace.NewUntyped(ur.Paddr, ur.BitSize, ur.Device, backing)
		reg.Register(u.Paddr, u)
		*root.Slot(uint64(i)) = u.Cap()
		inst.Untypeds = append(inst.Untypeds, u)

		blog.WithFields(logrus.Fields{
			"paddr": ur.Paddr, "bit_size": ur.BitSize, "device": ur.Device,
		}).Info("untyped region registered")
	}

	if cfg.BootImagePath != "" {
		origin, err := harness.LoadBootImage(harness.DefaultFs, cfg.BootImagePath, arena)
		if err != nil {
			return nil, fmt.Errorf("kernel: boot image: %w", err)
		}
		blog.WithField("origin", origin).Info("boot image loaded")
	}

	return inst, nil
}

// Shutdown unmaps the physical arena, the harness's halt primitive for a
// cleanly stopped Instance (tick sources and consoles must be Stop()'d by
// their owner first; Shutdown only tears down what Boot itself acquired).
func (inst *Instance) Shutdown() error {
	return inst.Arena.Close()
}
