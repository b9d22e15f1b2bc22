package ctlcli

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var (
	installCmd = &cobra.Command{
		Use:   "install [folder]",
		Short: "Install the watch-folder uploader as a background service",
		Args:  cobra.MaximumNArgs(1),
		Run:   runInstall,
	}
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the watch-folder service",
		Run:   runServiceStart,
	}
	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the watch-folder service",
		Run:   runServiceStop,
	}
	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the watch-folder service",
		Run:   runUninstall,
	}
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Tail the watch-folder service's log file",
		Run:   runLogs,
	}
)

func init() {
	watchCmd.AddCommand(installCmd)
	watchCmd.AddCommand(startCmd)
	watchCmd.AddCommand(stopCmd)
	watchCmd.AddCommand(uninstallCmd)
	watchCmd.AddCommand(logsCmd)
}

type program struct{}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) run() {
	if err := setupServiceLogging(); err != nil {
		log.Printf("failed to set up file logging: %v", err)
	}
	log.Println("watch-folder service starting...")

	cfg := GetConfig()
	log.Printf("loaded config: server=%s watchFolder=%s tokenSet=%v", cfg.ServerURL, cfg.WatchFolder, cfg.Token != "")
	if cfg.WatchFolder == "" {
		log.Println("no watch folder configured; run 'mediaorcctl watch install [folder]' first")
		return
	}

	watchFolder(cfg.WatchFolder, "asr-demucs")
}

func (p *program) Stop(s service.Service) error {
	log.Println("watch-folder service stopping...")
	return nil
}

func getServiceConfig(configPath string) *service.Config {
	ex, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}

	args := []string{"watch", "service-run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	return &service.Config{
		Name:        "mediaorc-watcher",
		DisplayName: "mediaorc Watch-Folder Uploader",
		Description: "Watches a folder and submits new audio files to a mediaorc server.",
		Executable:  ex,
		Arguments:   args,
	}
}

var serviceRunCmd = &cobra.Command{
	Use:    "service-run",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := setupServiceLogging(); err != nil {
			log.Printf("failed to set up file logging: %v", err)
		}
		log.Println("starting service-run...")

		prg := &program{}
		s, err := service.New(prg, getServiceConfig(""))
		if err != nil {
			log.Fatalf("failed to create service: %v", err)
		}

		svcLogger, err := s.Logger(nil)
		if err != nil {
			log.Printf("failed to get system logger: %v", err)
		} else {
			_ = svcLogger.Info("mediaorc watcher service starting...")
		}

		if err := s.Run(); err != nil {
			if svcLogger != nil {
				_ = svcLogger.Error(err)
			}
			log.Fatalf("service failed to run: %v", err)
		}
	},
}

func init() {
	watchCmd.AddCommand(serviceRunCmd)
}

func runInstall(cmd *cobra.Command, args []string) {
	var configPath string
	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			log.Fatalf("failed to resolve folder: %v", err)
		}
		cfg := GetConfig()
		path, err := SaveConfig(cfg.ServerURL, cfg.Token, absPath)
		if err != nil {
			log.Fatalf("failed to save config: %v", err)
		}
		configPath = path
		fmt.Printf("configured to watch: %s\n", absPath)
	} else {
		cfg := GetConfig()
		if cfg.WatchFolder == "" {
			log.Fatalf("no watch folder specified; usage: mediaorcctl watch install [folder]")
		}
		if cfgFile != "" {
			configPath = cfgFile
		} else if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".mediaorcctl.yaml")
		}
	}

	s, err := service.New(&program{}, getServiceConfig(configPath))
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Install(); err != nil {
		log.Fatalf("failed to install service: %v", err)
	}
	fmt.Println("service installed successfully.")
}

func runServiceStart(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Start(); err != nil {
		log.Fatalf("failed to start service: %v", err)
	}
	fmt.Println("service started.")
}

func runServiceStop(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		log.Fatalf("failed to stop service: %v", err)
	}
	fmt.Println("service stopped.")
}

func runUninstall(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Uninstall(); err != nil {
		log.Fatalf("failed to uninstall service: %v", err)
	}
	fmt.Println("service uninstalled.")
}

func getLogFilePath() string {
	return "/tmp/mediaorc-watcher.log"
}

func setupServiceLogging() error {
	f, err := os.OpenFile(getLogFilePath(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	return nil
}

func runLogs(cmd *cobra.Command, args []string) {
	logFile := getLogFilePath()
	fmt.Printf("tailing logs from %s...\n", logFile)

	c := exec.Command("tail", "-f", logFile)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		fmt.Printf("error tailing logs: %v\n", err)
	}
}
