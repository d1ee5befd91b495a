package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/probelab/otaguard/internal/layout"
	glog "github.com/probelab/otaguard/internal/log"
	"github.com/probelab/otaguard/internal/meta"
	"github.com/probelab/otaguard/internal/target/dump"
	"github.com/probelab/otaguard/internal/target/sim"
	"github.com/probelab/otaguard/internal/ui"
	"github.com/probelab/otaguard/internal/validate"
)

var (
	verbose    bool
	quiet      bool
	layoutPath string
	dumpBase   uint32
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "otaguard",
		Short: "Validate a staged firmware image before committing an A/B swap",
		Long: `Otaguard decides, from a debug-probe vantage point, whether a newly
staged firmware image is safe to boot. It halts the target, inspects the
staging slot through debug memory reads, and runs a fixed battery of
checks: metadata integrity, image CRC-32 and SHA-256, boot-vector
plausibility, pending-fault state, and anti-rollback.

The exit code is 0 only when every check passes, so the tool slots
directly into a CI/CD release gate.

Examples:
  otaguard validate flash.bin           # check a raw flash dump
  otaguard info flash.bin               # show both slots' metadata
  otaguard sim firmware.bin             # stage an image on a simulated target`,
		DisableFlagsInUseLine: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the summary (exit code only)")
	rootCmd.PersistentFlags().StringVar(&layoutPath, "layout", "", "YAML target layout file")

	validateCmd := &cobra.Command{
		Use:   "validate <flash.bin>",
		Short: "Run the check battery against a raw flash dump",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	validateCmd.Flags().Uint32Var(&dumpBase, "base", 0x08000000, "target address of the dump's first byte")
	rootCmd.AddCommand(validateCmd)

	infoCmd := &cobra.Command{
		Use:   "info <flash.bin>",
		Short: "Decode and print both slots' metadata records",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	infoCmd.Flags().Uint32Var(&dumpBase, "base", 0x08000000, "target address of the dump's first byte")
	rootCmd.AddCommand(infoCmd)

	var (
		simVersion       uint32
		simState         uint8
		simActiveVersion uint32
		simCFSR          uint32
	)
	simCmd := &cobra.Command{
		Use:   "sim <firmware.bin>",
		Short: "Stage an image on a simulated Cortex-M target and validate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(args[0], simVersion, simState, simActiveVersion, simCFSR)
		},
	}
	simCmd.Flags().Uint32Var(&simVersion, "version", 1, "staged image version")
	simCmd.Flags().Uint8Var(&simState, "state", 0x01, "staged OTA state byte")
	simCmd.Flags().Uint32Var(&simActiveVersion, "active-version", 0, "active slot version (0 = unprogrammed slot A)")
	simCmd.Flags().Uint32Var(&simCFSR, "cfsr", 0, "fault status to plant in CFSR")
	rootCmd.AddCommand(simCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadLayout() (layout.Layout, error) {
	if layoutPath == "" {
		return layout.Default(), nil
	}
	return layout.Load(layoutPath)
}

func newLogger() (*glog.Logger, string) {
	glog.Init(verbose)
	runID := uuid.NewString()[:8]
	return glog.L.WithRun(runID), runID
}

// finish renders the summary and maps the report onto the process exit
// code: 0 only on a full pass.
func finish(rep validate.Report, runID string) error {
	if !quiet {
		fmt.Print(ui.Summary(rep, runID))
	}
	if !rep.Pass() {
		os.Exit(1)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	lay, err := loadLayout()
	if err != nil {
		return err
	}
	lg, runID := newLogger()

	d, err := dump.Open(args[0], dumpBase)
	if err != nil {
		return err
	}
	defer d.Close()

	rep := validate.New(d, lay, lg).Run()
	return finish(rep, runID)
}

func runInfo(cmd *cobra.Command, args []string) error {
	lay, err := loadLayout()
	if err != nil {
		return err
	}
	d, err := dump.Open(args[0], dumpBase)
	if err != nil {
		return err
	}
	defer d.Close()

	printSlot := func(name string, addr uint32) {
		raw := make([]byte, meta.Size)
		if err := d.ReadBlock(addr, raw); err != nil {
			fmt.Printf("%s: metadata unreadable: %v\n", name, err)
			return
		}
		m, err := meta.Decode(raw)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			return
		}
		if m.Magic != meta.Magic {
			fmt.Printf("%s @ 0x%08X: unprogrammed (magic 0x%08X)\n", name, addr, m.Magic)
			return
		}
		fmt.Printf("%s @ 0x%08X:\n", name, addr)
		fmt.Printf("  version:    0x%08X\n", m.Version)
		fmt.Printf("  state:      0x%02X\n", m.State)
		fmt.Printf("  image size: %d bytes\n", m.ImageSize)
		fmt.Printf("  crc32:      0x%08X\n", m.CRC32)
		fmt.Printf("  sha256:     %x\n", m.SHA256)
		fmt.Printf("  self-crc:   0x%08X (%s)\n", m.MetaCRC, okStr(meta.SelfCRCValid(raw)))
	}

	printSlot("slot A", lay.MetadataAddrA)
	printSlot("slot B", lay.MetadataAddrB)
	return nil
}

func okStr(ok bool) string {
	if ok {
		return "ok"
	}
	return "MISMATCH"
}

func runSim(imagePath string, version uint32, state uint8, activeVersion, cfsr uint32) error {
	lay, err := loadLayout()
	if err != nil {
		return err
	}
	lg, runID := newLogger()

	img, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if uint32(len(img)) > lay.SlotSize {
		return fmt.Errorf("image %d bytes exceeds slot size %d", len(img), lay.SlotSize)
	}

	tgt, err := sim.New(lay)
	if err != nil {
		return err
	}
	defer tgt.Close()

	if _, err := tgt.StageImage(img, version, state); err != nil {
		return err
	}
	if activeVersion != 0 {
		active := meta.Metadata{Magic: meta.Magic, Version: activeVersion, State: 0x03, ImageSize: 1}
		active.Seal()
		if err := tgt.SetActive(active); err != nil {
			return err
		}
	}
	if cfsr != 0 {
		if err := tgt.SetCFSR(cfsr); err != nil {
			return err
		}
	}

	rep := validate.New(tgt, lay, lg).Run()
	return finish(rep, runID)
}
