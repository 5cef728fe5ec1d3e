package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"titantag/internal/app"
	"titantag/internal/bridge"
	"titantag/internal/config"
	"titantag/internal/printer"
)

const (
	AppVersion = "0.3.0"
	AppName    = "Titantag"
)

// Callback names the shell registers with the bridge.
const (
	callbackSpoken   = "spoken"
	callbackDictated = "dictated"
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	log     *slog.Logger
	stack   *app.Stack
	bridge  *bridge.Bridge
	cancel  context.CancelFunc

	previewImg *canvas.Image

	// Widgets that need updating
	idEntry        *widget.Entry
	statusLabel    *widget.Label
	printBtn       *widget.Button
	speakBtn       *widget.Button
	dictateBtn     *widget.Button
	btDeviceSelect *widget.Select
	refreshBTBtn   *widget.Button
	portSelect     *widget.Select

	// Bluetooth devices cache
	btDevices []printer.BluetoothDevice
	dictating bool
}

func main() {
	configPath := os.Getenv("TITANTAG_CONFIG")
	if configPath == "" {
		configPath = "titantag.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	a := fyneapp.New()
	w := a.NewWindow(fmt.Sprintf("%s v%s", AppName, AppVersion))
	w.Resize(fyne.NewSize(650, 450))

	ctx, cancel := context.WithCancel(context.Background())
	deskApp := &App{
		fyneApp: a,
		window:  w,
		log:     log,
		stack:   app.NewStack(cfg, log),
		cancel:  cancel,
	}

	w.SetMainMenu(deskApp.buildMenu())
	w.SetContent(deskApp.buildUI())

	// The status line must exist before the bridge can report to it.
	deskApp.bridge = deskApp.stack.Bridge(ctx, deskApp, "")
	if deskApp.stack.Synthesizer.Available() {
		deskApp.speakBtn.Enable()
	}
	if !deskApp.stack.Recognizer.Available() {
		deskApp.dictateBtn.Disable()
	}

	w.SetOnClosed(func() {
		deskApp.cleanup()
	})
	w.ShowAndRun()
}

func (a *App) buildMenu() *fyne.MainMenu {
	aboutItem := fyne.NewMenuItem("About", func() {
		a.showAboutDialog()
	})

	helpMenu := fyne.NewMenu("Help", aboutItem)

	return fyne.NewMainMenu(helpMenu)
}

func (a *App) showAboutDialog() {
	content := container.NewVBox(
		widget.NewLabelWithStyle(AppName, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel(fmt.Sprintf("Version %s", AppVersion)),
		widget.NewSeparator(),
		widget.NewLabel("QR find labels for the SK58 thermal printer,"),
		widget.NewLabel("with Hebrew speech output and dictation."),
		widget.NewLabel(""),
		widget.NewHyperlink("QR code generation by skip2/go-qrcode", parseURL("https://github.com/skip2/go-qrcode")),
		widget.NewLabel(""),
		widget.NewLabel("Built with Fyne and Go"),
	)

	dialog.ShowCustom("About", "Close", content, a.window)
}

func parseURL(urlStr string) *url.URL {
	u, _ := url.Parse(urlStr)
	return u
}

func (a *App) cleanup() {
	a.cancel()
	if a.bridge != nil {
		a.bridge.Close()
	}
}

func (a *App) buildUI() fyne.CanvasObject {
	// Status bar
	a.statusLabel = widget.NewLabel("Ready")

	// === PRINTER SECTION ===
	btLabel := widget.NewLabel(fmt.Sprintf("Bonded printers (%s*):", a.stack.Printer.NamePrefix()))
	a.btDeviceSelect = widget.NewSelect([]string{}, func(s string) {})
	a.refreshBTBtn = widget.NewButton("↻", func() {
		go a.refreshBluetoothDevices()
	})

	go a.refreshBluetoothDevices()

	btRow := container.NewBorder(
		nil, nil, nil,
		a.refreshBTBtn,
		a.btDeviceSelect,
	)

	// === SERIAL PORTS (advanced) ===
	a.portSelect = widget.NewSelect([]string{}, func(s string) {})
	a.refreshPorts()

	manualRefreshBtn := widget.NewButton("↻", func() {
		a.refreshPorts()
	})

	manualRow := container.NewBorder(
		nil, nil, nil,
		manualRefreshBtn,
		a.portSelect,
	)

	advancedContent := container.NewVBox(
		widget.NewLabel(fmt.Sprintf("Transport: %s", a.stack.Config.Printer.Transport)),
		widget.NewLabel("Serial ports (for transport serial):"),
		manualRow,
	)

	// === FIND ID ===
	a.idEntry = widget.NewEntry()
	a.idEntry.SetPlaceHolder("מזהה ממצא")
	a.idEntry.OnChanged = func(s string) {
		a.updatePreview()
	}
	a.idEntry.OnSubmitted = func(s string) {
		a.print()
	}

	a.printBtn = widget.NewButton("Print", func() {
		a.print()
	})
	a.printBtn.Importance = widget.HighImportance
	a.printBtn.Disable()

	a.speakBtn = widget.NewButton("Speak", func() {
		a.speak()
	})
	a.speakBtn.Disable()

	a.dictateBtn = widget.NewButton("Dictate", func() {
		a.toggleDictation()
	})

	// Preview
	a.previewImg = canvas.NewImageFromImage(nil)
	a.previewImg.SetMinSize(fyne.NewSize(270, 180))
	a.previewImg.FillMode = canvas.ImageFillContain
	a.previewImg.ScaleMode = canvas.ImageScalePixels

	leftPanel := container.NewVBox(
		btLabel,
		btRow,
		widget.NewSeparator(),
		widget.NewAccordion(
			widget.NewAccordionItem("Advanced", advancedContent),
		),
		widget.NewSeparator(),
		widget.NewLabel("Find ID"),
		a.idEntry,
		container.NewGridWithColumns(2, a.speakBtn, a.dictateBtn),
		widget.NewSeparator(),
		a.printBtn,
	)

	rightPanel := container.NewCenter(a.previewImg)

	content := container.NewHSplit(leftPanel, rightPanel)
	content.SetOffset(0.45)

	return container.NewBorder(
		nil,
		container.NewHBox(a.statusLabel),
		nil, nil,
		content,
	)
}

func (a *App) refreshBluetoothDevices() {
	a.statusLabel.SetText("Scanning for paired devices...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	devices, err := a.stack.Printer.Devices(ctx)
	if err != nil {
		a.statusLabel.SetText(fmt.Sprintf("Bluetooth scan failed: %v", err))
		return
	}

	a.btDevices = devices

	options := make([]string, len(devices))
	selectedIdx := -1
	for i, d := range devices {
		options[i] = d.String()
		if selectedIdx < 0 && strings.HasPrefix(d.Name, a.stack.Printer.NamePrefix()) {
			selectedIdx = i
		}
	}

	a.btDeviceSelect.Options = options
	a.btDeviceSelect.Refresh()
	if selectedIdx >= 0 {
		a.btDeviceSelect.SetSelected(options[selectedIdx])
		a.statusLabel.SetText(fmt.Sprintf("Printer: %s", devices[selectedIdx].Name))
		return
	}
	a.statusLabel.SetText(fmt.Sprintf("Found %d paired device(s), none named %s*", len(devices), a.stack.Printer.NamePrefix()))
}

func (a *App) refreshPorts() {
	ports, err := printer.ListSerialPorts()
	if err != nil {
		a.log.Debug("list serial ports", "error", err)
	}

	a.portSelect.Options = ports
	a.portSelect.Refresh()
	if len(ports) > 0 {
		a.portSelect.SetSelected(ports[0])
	}
}

func (a *App) updatePreview() {
	text := strings.TrimSpace(a.idEntry.Text)
	if text == "" {
		a.previewImg.Image = nil
		a.previewImg.Refresh()
		a.printBtn.Disable()
		return
	}

	canvasBm, err := a.stack.Compositor.Composite(text)
	if err != nil {
		a.statusLabel.SetText(fmt.Sprintf("Cannot encode: %v", err))
		a.printBtn.Disable()
		return
	}

	a.previewImg.Image = canvasBm.Image()
	a.previewImg.Refresh()
	a.printBtn.Enable()
}

func (a *App) print() {
	if strings.TrimSpace(a.idEntry.Text) == "" {
		a.bridge.PrintLabel("")
		return
	}
	a.statusLabel.SetText("Printing...")
	a.bridge.PrintLabel(a.idEntry.Text)
}

func (a *App) speak() {
	a.speakBtn.Disable()
	a.bridge.SpeakWithCallback(a.idEntry.Text, callbackSpoken)
}

func (a *App) toggleDictation() {
	if a.dictating {
		a.bridge.StopTranscription()
		a.dictateBtn.SetText("Dictate")
		a.dictating = false
		return
	}
	a.dictating = true
	a.dictateBtn.SetText("Stop")
	a.statusLabel.SetText("Listening...")
	a.bridge.StartTranscription(callbackDictated)
}

// Notify shows bridge notifications on the status line.
func (a *App) Notify(message string) {
	a.statusLabel.SetText(message)
}

// Call receives the bridge's script callbacks.
func (a *App) Call(callback string, args ...any) {
	switch callback {
	case callbackSpoken:
		a.speakBtn.Enable()
	case callbackDictated:
		if len(args) != 3 {
			return
		}
		if text, ok := args[0].(string); ok {
			a.idEntry.SetText(text)
		}
		if final, _ := args[1].(bool); final {
			a.dictating = false
			a.dictateBtn.SetText("Dictate")
			a.statusLabel.SetText("Ready")
		}
		if code, ok := args[2].(string); ok {
			a.statusLabel.SetText(fmt.Sprintf("Dictation failed: %s", code))
		}
	default:
		a.log.Debug("unhandled callback", "callback", callback)
	}
}

// RequestPermission asks the user in a dialog.
func (a *App) RequestPermission(capability string) {
	msg := "Allow connecting to the Bluetooth printer?"
	if capability == bridge.CapabilityMicrophone {
		msg = "Allow recording from the microphone?"
	}
	dialog.ShowConfirm("Permission", msg, func(ok bool) {
		a.bridge.OnPermissionResult(capability, ok)
	}, a.window)
}
