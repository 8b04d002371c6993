package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	kernel "github.com/behrlich/microvnode"
	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/internal/klog"
	"github.com/behrlich/microvnode/internal/vnode"
	"github.com/behrlich/microvnode/sched"
	"github.com/behrlich/microvnode/syscalls"
)

func main() {
	var (
		verbose  = flag.Bool("v", false, "verbose logging")
		tickRate = flag.Duration("tick", 100*time.Millisecond, "kernel clock tick interval")
	)
	flag.Parse()

	logConfig := klog.DefaultConfig()
	if *verbose {
		logConfig.Level = klog.LevelDebug
	}
	logger := klog.New(logConfig)
	klog.SetDefault(logger)

	k := kernel.Boot([]kernel.Region{
		{Start: 0x0, End: 0x1000, Kind: kernel.Reserved},
		{Start: 0x1000, End: 0x10000000, Kind: kernel.Usable},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runEchoService(ctx, k)
	runNetworkDriver(ctx, k)

	go func() {
		ticker := time.NewTicker(*tickRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				k.Tick()
				k.Scheduler().Schedule()
			}
		}
	}()

	fmt.Println("microvnode kernel booted")
	fmt.Println("V-Nodes running: echo-service (task 1), net-driver (task 2)")
	fmt.Println("Press Ctrl+C to stop...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()
	time.Sleep(50 * time.Millisecond) // let V-Node goroutines observe ctx.Done
	os.Exit(0)
}

// pinToCPU locks the calling goroutine to its OS thread and sets that
// thread's affinity to cpuIdx, the same best-effort, non-fatal pattern
// the teacher uses to keep a queue's I/O loop on one CPU.
func pinToCPU(cpuIdx int, logger *klog.Logger) {
	runtime.LockOSThread()
	var mask unix.CPUSet
	mask.Set(cpuIdx)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		logger.Debug("failed to set CPU affinity", "cpu", cpuIdx, "err", err)
	}
}

// runEchoService loads a V-Node that blocks receiving on channel 0 and
// echoes every message back out on channel 1, demonstrating the
// blocking-receive loop-on-zero protocol end to end.
func runEchoService(ctx context.Context, k *kernel.Kernel) {
	caps := capset.New(capset.TagIpcManage(), capset.TagLogWrite())
	vnode.Run(ctx, k, 1, "echo-service", caps, func(ctx context.Context, kv vnode.Kernel, self sched.ID) {
		const inPtr, outPtr, bufCap = 0, 512, 256
		for {
			length, ok := vnode.RecvBlocking(ctx, kv, self, syscalls.IpcRecv, 0, inPtr, bufCap, 20*time.Millisecond)
			if !ok {
				return
			}
			kv.Dispatch(self, syscalls.IpcSend, 1, inPtr, length)
			_ = outPtr
		}
	})
}

// runNetworkDriver loads a V-Node that polls a simulated network
// interface and forwards whatever it receives back out, demonstrating
// the DMA buffer + NET_RX_POLL/NET_TX pair.
func runNetworkDriver(ctx context.Context, k *kernel.Kernel) {
	caps := capset.New(capset.TagNetworkAccess())
	vnode.Run(ctx, k, 2, "net-driver", caps, func(ctx context.Context, kv vnode.Kernel, self sched.ID) {
		pinToCPU(0, klog.Default())

		handle := kv.Dispatch(self, syscalls.NetAllocBuf, 1536, 0, 0)
		if handle >= syscalls.EAccessDenied {
			return
		}
		defer kv.Dispatch(self, syscalls.NetFreeBuf, handle, 0, 0)

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := kv.Dispatch(self, syscalls.NetRxPoll, 0, handle, 1536)
				if n > 0 && n < syscalls.EAccessDenied {
					kv.Dispatch(self, syscalls.NetTx, 0, handle, n)
				}
			}
		}
	})
}
