package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/dataguard"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("dataguard-config - Configuration tool for dataguard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dataguard-config convert <input> <output>  - Convert between formats")
	fmt.Println("  dataguard-config validate <file>           - Validate configuration")
	fmt.Println("  dataguard-config stats <file>              - Show configuration statistics")
	fmt.Println("  dataguard-config apply <file>              - Dry-run apply against an in-memory engine")
	fmt.Println()
	fmt.Println("Supported formats: .dgc, .yaml, .yml, .json")
}

func loadConfig(path string) (*dataguard.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loader := dataguard.NewConfigLoader()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	case ".dgc":
		return loader.LoadDSL(data)
	}
	return nil, fmt.Errorf("unsupported input format: %s", filepath.Ext(path))
}

func exportConfig(cfg *dataguard.Config, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return cfg.ToYAML()
	case ".json":
		return cfg.ToJSON()
	case ".dgc":
		return cfg.ToDSL()
	}
	return nil, fmt.Errorf("unsupported output format: %s", filepath.Ext(path))
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("convert needs <input> and <output>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fail("load", err)
	}
	out, err := exportConfig(cfg, os.Args[3])
	if err != nil {
		fail("export", err)
	}
	if err := os.WriteFile(os.Args[3], out, 0o644); err != nil {
		fail("write", err)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], os.Args[3])
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("validate needs <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fail("load", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("validate", err)
	}
	fmt.Println("Configuration is valid")
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("stats needs <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fail("load", err)
	}
	fields, rows := 0, 0
	for _, p := range cfg.Policies {
		fields += len(p.FieldRules)
		rows += len(p.RowRules)
	}
	fmt.Printf("Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("Groups:      %d\n", len(cfg.Groups))
	fmt.Printf("Users:       %d\n", len(cfg.Users))
	fmt.Printf("Policies:    %d (field rules: %d, row rules: %d)\n", len(cfg.Policies), fields, rows)
	fmt.Printf("Masking:     %d\n", len(cfg.Masking))
	if cfg.Engine.CacheTTL > 0 {
		fmt.Printf("Cache TTL:   %dms\n", cfg.Engine.CacheTTL)
	}
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("apply needs <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fail("load", err)
	}
	engine, err := dataguard.NewEngine(
		dataguard.NewMemoryUserStore(),
		dataguard.NewMemoryRoleStore(),
		dataguard.NewMemoryGroupStore(),
	)
	if err != nil {
		fail("engine", err)
	}
	if err := engine.ApplyConfig(context.Background(), cfg); err != nil {
		fail("apply", err)
	}
	fmt.Println("Configuration applied cleanly to an in-memory engine")
}

func fail(step string, err error) {
	fmt.Printf("%s: %v\n", step, err)
	os.Exit(1)
}
