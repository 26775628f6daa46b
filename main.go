package main

import (
	"embed"
	"flag"
	stdlog "log"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	"github.com/zjregee/alterchat/internal/app"
	"github.com/zjregee/alterchat/internal/config"
	"github.com/zjregee/alterchat/internal/log"
)

//go:embed all:frontend/src
var assets embed.FS

func main() {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		stdlog.Fatal(err)
	}
	configPath := flag.String("config", defaultPath, "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatal(err)
	}
	log.Init(cfg.Log, os.Stderr)

	application, err := app.NewApp(cfg)
	if err != nil {
		stdlog.Fatalf("Failed to initialize chat service: %v", err)
	}

	err = wails.Run(&options.App{
		Title:     "Alter Chat",
		Width:     800,
		Height:    680,
		MinWidth:  800,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 30, G: 30, B: 30, A: 255},
		OnStartup:        application.Startup,
		OnShutdown:       application.Shutdown,
		Bind: []any{
			application,
		},
		Mac: &mac.Options{
			TitleBar:             mac.TitleBarDefault(),
			Appearance:           mac.NSAppearanceNameDarkAqua,
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
		},
	})

	if err != nil {
		stdlog.Fatal(err)
	}
}
