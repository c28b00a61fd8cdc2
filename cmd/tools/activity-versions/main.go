// cmd/tools/activity-versions/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/config"
	"cadio-client/internal/common/credentials"
	"cadio-client/internal/common/logger"
	"cadio-client/internal/pipeline"
	"cadio-client/pkg/activitydef"
)

var configPath string

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	setCmd := flag.NewFlagSet("set", flag.ExitOnError)
	showCmd := flag.NewFlagSet("show", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	nameList := listCmd.String("name", activitydef.DefaultID, "Activity ID")
	listCmd.StringVar(&configPath, "config", "", "Path to config file")

	nameSet := setCmd.String("name", activitydef.DefaultID, "Activity ID")
	version := setCmd.Int("version", 0, "Version to make current")
	setCmd.StringVar(&configPath, "config", "", "Path to config file")

	nameShow := showCmd.String("name", activitydef.DefaultID, "Activity ID")
	showCmd.StringVar(&configPath, "config", "", "Path to config file")

	definitionPath := validateCmd.String("path", "", "Path to an activity definition (JSON)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		client := connect()
		versions, err := client.ListVersions(context.Background(), *nameList)
		if err != nil {
			fmt.Printf("Error listing versions: %v\n", err)
			os.Exit(1)
		}
		for _, v := range versions {
			fmt.Printf("%d\t%s\n", v.Version, v.Timestamp.Format(time.RFC3339))
		}

	case "set":
		setCmd.Parse(os.Args[2:])
		if *version <= 0 {
			fmt.Println("Error: a positive -version is required for set.")
			setCmd.Usage()
			os.Exit(1)
		}
		client := connect()
		if err := client.SetVersion(context.Background(), *nameSet, *version); err != nil {
			fmt.Printf("Error setting version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Activity %s now at version %d\n", *nameSet, *version)

	case "show":
		showCmd.Parse(os.Args[2:])
		client := connect()
		activity, found, err := client.GetActivity(context.Background(), *nameShow)
		if err != nil {
			fmt.Printf("Error fetching activity: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Printf("Activity %s does not exist\n", *nameShow)
			os.Exit(1)
		}
		printJSON(activity)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		def, err := activitydef.Load(*definitionPath)
		if err != nil {
			fmt.Printf("Definition validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Definition %s is valid (%d inputs, %d outputs).\n",
			def.ID, len(def.InputParameters), len(def.OutputParameters))

	case "help":
		fallthrough
	default:
		help()
	}
}

// connect loads config and credentials the same way the runner does and returns an authenticated client.
func connect() *autocadio.Client {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	provider := credentials.NewProvider(cfg.Credentials)
	keys, err := credentials.Require(provider, credentials.ForgeClientID, credentials.ForgeClientSecret)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	creds := &credentials.Set{
		ForgeClientID:     keys[credentials.ForgeClientID],
		ForgeClientSecret: keys[credentials.ForgeClientSecret],
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	client, err := pipeline.Connect(context.Background(), cfg, creds, nil, log)
	if err != nil {
		fmt.Printf("Error acquiring token: %v\n", err)
		os.Exit(1)
	}
	return client
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func help() {
	fmt.Print(`
Usage: activity-versions <command> [flags]

Commands:
  list     List the stored versions of an activity
  set      Make a stored version the current one
  show     Print the current activity
  validate Validate an activity definition file
  help     Show this help message

Examples:
  activity-versions list -name TestImport
  activity-versions set -name TestImport -version 3
  activity-versions show -name TestImport -config configs/config.yaml
  activity-versions validate -path configs/activity.json

Use 'activity-versions <command> -h' for more information about a command.
` + "\n")
}
