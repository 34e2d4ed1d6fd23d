// Command chickd boots one kernel Instance, starts its tick source, and
// runs two demo user threads that exercise the retype -> IPC path
// end to end: allocate the backing state, start the run loop in a
// goroutine, and wait for either it to finish or a signal.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/cspace"
	"github.com/ricoqos/chick/internal/harness"
	"github.com/ricoqos/chick/internal/ipc"
	"github.com/ricoqos/chick/internal/kernel"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/ricoqos/chick/internal/trap"
	"github.com/sirupsen/logrus"
)

func main() {
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	configPath := flag.String("config", "", "path to a TOML boot configuration file")
	console := flag.Bool("console", false, "read stdin as a raw-mode keyboard console, posting keystrokes to a kernel endpoint")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := kernel.LoadBootConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("chickd: load boot config")
	}

	inst, err := kernel.Boot(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("chickd: boot")
	}
	defer inst.Shutdown()

	sender, receiver := bootDemoThreads(inst)

	tick := harness.NewTickSource(inst.Exec, cfg.TickHz, logger)
	done := make(chan struct{})
	go func() {
		tick.Run()
		close(done)
	}()

	go runDemoRendezvous(inst, sender, receiver, logger)

	var consoleDriver *harness.Console
	if *console {
		consoleDriver = bootConsole(inst, logger)
		go func() {
			if err := consoleDriver.Run(); err != nil {
				logger.WithError(err).Warn("chickd: console stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("chickd: signal received, stopping tick source")
		tick.Stop()
	case <-done:
	}

	if consoleDriver != nil {
		consoleDriver.Stop()
	}

	logger.Info("chickd: stopped")
}

// bootConsole retypes an Endpoint and a consumer TCB out of the
// instance's first untyped region, starts a background thread blocked
// in Receive on that endpoint to log every keystroke, and wires a
// harness.Console around the same endpoint object to feed it — the
// -console flag's end-to-end path from a real terminal keystroke
// through trap.Dispatch's Receive into a logged message register.
func bootConsole(inst *kernel.Instance, logger *logrus.Logger) *harness.Console {
	ut := inst.Untypeds[0]
	utSlot := inst.RootCNode.Slot(0)

	epSlot := inst.RootCNode.Slot(5)
	tcbSlot := inst.RootCNode.Slot(6)
	if err := cspace.Retype(utSlot, ut, capobj.TypeEndpoint, 0, []*capobj.CapRaw{epSlot}, inst.Objects, inst.ASIDs); err != kernelerr.None {
		log.Fatalf("chickd: retype console endpoint: %s", err)
	}
	if err := cspace.Retype(utSlot, ut, capobj.TypeTcb, 0, []*capobj.CapRaw{tcbSlot}, inst.Objects, inst.ASIDs); err != kernelerr.None {
		log.Fatalf("chickd: retype console consumer: %s", err)
	}

	epObj, _ := inst.Objects.Lookup(epSlot.Paddr)
	ep := epObj.(*ipc.Endpoint)

	consumerObj, _ := inst.Objects.Lookup(tcbSlot.Paddr)
	consumer := consumerObj.(*tcb.TCB)
	consumer.Name = "console-consumer"
	rootCap := inst.RootCNode.Cap()
	consumer.CSpaceRoot = &rootCap

	// Slot 5's guard/radix match demo endpoint slot 4's (boot.go's
	// single-level root CNode), so the cptr is again just the bare index.
	const consoleEpCptr = uint32(5)

	consumerUT := harness.NewUserThread(consumer, inst.Kernel)
	go func() {
		for {
			err := consumerUT.Issue(harness.Syscall{Number: trap.Receive, Args: [6]uint64{uint64(consoleEpCptr), 1}})
			if err != kernelerr.None {
				logger.WithField("err", err.String()).Warn("chickd: console consumer receive failed")
				return
			}
			logger.WithField("key", consumer.Regs.MR(tcb.MR1)).Info("chickd: console keystroke")
		}
	}()

	return harness.NewConsole(ep, inst.Exec, logger)
}

// bootDemoThreads retypes a CNode, an Endpoint, and two TCBs out of the
// instance's first untyped region, wiring each TCB's CSpace root to a
// capability for the instance's root CNode, where the freshly minted
// capabilities live, so the demo rendezvous below has real capabilities
// to send and receive through, not bare Go values.
func bootDemoThreads(inst *kernel.Instance) (sender, receiver *tcb.TCB) {
	if len(inst.Untypeds) == 0 {
		log.Fatal("chickd: boot config produced no untyped regions")
	}
	ut := inst.Untypeds[0]

	cnSlot := inst.RootCNode.Slot(1)
	tcbSlotA := inst.RootCNode.Slot(2)
	tcbSlotB := inst.RootCNode.Slot(3)
	epSlot := inst.RootCNode.Slot(4)

	utSlot := inst.RootCNode.Slot(0)
	dests := []*capobj.CapRaw{cnSlot}
	if err := cspace.Retype(utSlot, ut, capobj.TypeCNode, cspace.SlotBitWidth+2, dests, inst.Objects, inst.ASIDs); err != kernelerr.None {
		log.Fatalf("chickd: retype demo cnode: %s", err)
	}
	if err := cspace.Retype(utSlot, ut, capobj.TypeTcb, 0, []*capobj.CapRaw{tcbSlotA, tcbSlotB}, inst.Objects, inst.ASIDs); err != kernelerr.None {
		log.Fatalf("chickd: retype demo tcbs: %s", err)
	}
	if err := cspace.Retype(utSlot, ut, capobj.TypeEndpoint, 0, []*capobj.CapRaw{epSlot}, inst.Objects, inst.ASIDs); err != kernelerr.None {
		log.Fatalf("chickd: retype demo endpoint: %s", err)
	}

	objA, _ := inst.Objects.Lookup(tcbSlotA.Paddr)
	objB, _ := inst.Objects.Lookup(tcbSlotB.Paddr)
	sender = objA.(*tcb.TCB)
	receiver = objB.(*tcb.TCB)
	sender.Name, receiver.Name = "demo-sender", "demo-receiver"
	rootCap := inst.RootCNode.Cap()
	sender.CSpaceRoot = &rootCap
	receiver.CSpaceRoot = &rootCap
	return sender, receiver
}

// runDemoRendezvous issues a blocking Receive from receiver and, shortly
// after, a blocking Send with a badge from sender, both through
// internal/harness's UserThread wrapper over trap.Dispatch, exercising the
// full syscall path rather than calling internal/ipc directly.
func runDemoRendezvous(inst *kernel.Instance, sender, receiver *tcb.TCB, logger *logrus.Logger) {
	// The root CNode has a 24-bit zero guard and an 8-bit radix (boot.go),
	// so the guard consumes the pointer's top 24 bits and the slot index
	// is simply its low 8 bits: no shift needed to address slot 4.
	const epCptr = uint32(4)

	recvUT := harness.NewUserThread(receiver, inst.Kernel)
	sendUT := harness.NewUserThread(sender, inst.Kernel)

	go func() {
		err := recvUT.Issue(harness.Syscall{Number: trap.Receive, Args: [6]uint64{uint64(epCptr), 1}})
		logger.WithFields(logrus.Fields{"err": err.String(), "mr1": receiver.Regs.MR(tcb.MR1)}).Info("chickd: demo receiver woke")
	}()

	time.Sleep(50 * time.Millisecond)
	err := sendUT.Issue(harness.Syscall{Number: trap.Send, Args: [6]uint64{uint64(epCptr), 0x42, 0x1}})
	logger.WithField("err", err.String()).Info("chickd: demo sender completed")
}
