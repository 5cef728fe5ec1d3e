package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"titantag/internal/api"
	"titantag/internal/app"
	"titantag/internal/bridge"
	"titantag/internal/config"
	"titantag/internal/escpos"
	"titantag/internal/imaging"
	"titantag/internal/label"
	"titantag/internal/printer"
)

var version = "v0.3.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "titantag",
		Short:         "Native label printing and Hebrew speech bridge for the field app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "titantag.yaml", "Path to config file")

	// --- serve command -------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP bridge for the web front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	// --- print command -------------------------------------------------------
	var printTimeout time.Duration
	printCmd := &cobra.Command{
		Use:   "print [id]",
		Short: "Print a QR label for a find id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(configPath, args[0], printTimeout)
		},
	}
	printCmd.Flags().DurationVar(&printTimeout, "timeout", 30*time.Second, "Give up after this long")
	root.AddCommand(printCmd)

	// --- preview command -----------------------------------------------------
	var previewOut string
	var previewLabel bool
	previewCmd := &cobra.Command{
		Use:   "preview [text]",
		Short: "Write the QR preview, or the full label with --label, as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(configPath, args[0], previewOut, previewLabel)
		},
	}
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "preview.png", "Output PNG file")
	previewCmd.Flags().BoolVar(&previewLabel, "label", false, "Render the whole label canvas")
	root.AddCommand(previewCmd)

	// --- print-image command -------------------------------------------------
	var imageOut string
	imageCmd := &cobra.Command{
		Use:   "print-image [file]",
		Short: "Fit an image to the label and print it, or dump the job with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrintImage(configPath, args[0], imageOut)
		},
	}
	imageCmd.Flags().StringVarP(&imageOut, "out", "o", "", "Write the printer job to this file instead of printing")
	root.AddCommand(imageCmd)

	// --- devices command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List bonded Bluetooth devices and serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(configPath)
		},
	})

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("titantag %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)
	return cfg, log, nil
}

// runServe is the main service entrypoint that wires all components together.
func runServe(configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	log.Info("starting titantag", "version", version, "port", cfg.Port,
		"printer_prefix", cfg.Printer.NamePrefix, "transport", cfg.Printer.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := api.NewHub(log)
	stack := app.NewStack(cfg, log)
	b := stack.Bridge(ctx, hub, "")
	hub.OnPermission = b.OnPermissionResult

	log.Info("speech engines", "tts", stack.Synthesizer.Available(), "asr", stack.Recognizer.Available())

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(&api.Server{
			Bridge:     b,
			Hub:        hub,
			Log:        log,
			Version:    version,
			NamePrefix: cfg.Printer.NamePrefix,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error("HTTP server error", "error", err)
	}

	log.Info("shutting down...")
	cancel()
	b.Close()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	log.Info("goodbye")
	return nil
}

// consoleHost prints bridge notifications for one-shot commands.
type consoleHost struct{}

func (consoleHost) Notify(message string)    { fmt.Println(message) }
func (consoleHost) Call(string, ...any)      {}
func (consoleHost) RequestPermission(string) {}

func runPrint(configPath, id string, timeout time.Duration) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	// Running the command is the user's consent unless consent is disabled.
	mode := bridge.PermissionGrant
	if cfg.Permissions.Mode == string(bridge.PermissionDeny) {
		mode = bridge.PermissionDeny
	}

	b := app.NewStack(cfg, log).Bridge(ctx, consoleHost{}, mode)
	defer b.Close()

	res, err := b.PrintLabelSync(ctx, id)
	if err != nil {
		return describe(err, cfg.Printer.NamePrefix)
	}
	fmt.Printf("printed %q on %s (%d bytes)\n", strings.TrimSpace(id), res.Device, res.Bytes)
	return nil
}

// describe turns printer errors into a hint the operator can act on.
func describe(err error, prefix string) error {
	switch {
	case errors.Is(err, printer.ErrAdapterDisabled):
		return fmt.Errorf("%w (turn Bluetooth on and try again)", err)
	case errors.Is(err, printer.ErrDeviceNotFound):
		return fmt.Errorf("%w (pair a printer whose name starts with %q)", err, prefix)
	case errors.Is(err, printer.ErrPrivilegeRequired):
		return fmt.Errorf("%w (install pkexec or sudo, or use transport socket)", err)
	}
	return err
}

func runPreview(configPath, text, out string, whole bool) error {
	cfg, _, err := setup(configPath)
	if err != nil {
		return err
	}
	c := label.NewCompositor(label.Default, nil)
	c.Caption = cfg.Label.Caption

	var bm *imaging.Bitmap
	if whole {
		bm, err = c.Composite(text)
	} else {
		if strings.TrimSpace(text) == "" {
			return label.ErrInvalidInput
		}
		bm, err = c.Provider.Matrix(strings.TrimSpace(text), bridge.PreviewSize)
	}
	if err != nil {
		return err
	}

	data, err := bm.PNG()
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	fmt.Printf("wrote %dx%d preview to %s\n", bm.Width, bm.Height, out)
	return nil
}

func runPrintImage(configPath, path, out string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	img, err := imaging.LoadImage(path)
	if err != nil {
		return err
	}
	canvas := imaging.Fit(img, label.Default.WidthDots(), label.Default.HeightDots())

	if out != "" {
		raster, err := escpos.EncodeRaster(canvas)
		if err != nil {
			return err
		}
		job := escpos.LabelJob(raster, label.Default.GapDots())
		if err := os.WriteFile(out, job, 0o644); err != nil {
			return fmt.Errorf("write job: %w", err)
		}
		fmt.Printf("wrote %d byte job to %s\n", len(job), out)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := app.NewStack(cfg, log).Printer.Print(ctx, canvas)
	if err != nil {
		return describe(err, cfg.Printer.NamePrefix)
	}
	fmt.Printf("printed %s on %s (%d bytes)\n", path, res.Device, res.Bytes)
	return nil
}

func runDevices(configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p := app.NewStack(cfg, log).Printer
	devices, err := p.Devices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bonded devices: %v\n", err)
	}
	fmt.Println("Bonded devices:")
	if len(devices) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range devices {
		mark := " "
		if strings.HasPrefix(d.Name, p.NamePrefix()) {
			mark = "*"
		}
		fmt.Printf(" %s %s\n", mark, d)
	}

	ports, err := printer.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	fmt.Println("Serial ports:")
	if len(ports) == 0 {
		fmt.Println("  (none)")
	}
	for _, port := range ports {
		fmt.Printf("   %s\n", port)
	}
	return nil
}
