package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// sessionFromConfig builds a one-shot session from the stored config and
// identity.
func sessionFromConfig() (*Session, *PoLConfig, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	modulus, err := config.ModulusInt()
	if err != nil {
		return nil, nil, err
	}
	keys, err := LoadKeyPair(keyPath())
	if err != nil {
		return nil, nil, fmt.Errorf("no identity key, run `pol keygen` first: %w", err)
	}
	return NewSession(modulus, config.UpperBound, keys), config, nil
}

func printRecord(record *PoLRecord) {
	fmt.Printf("Latency estimate: %d squarings (prover T=%d, verifier T=%d)\n",
		record.LatencyEstimate(), record.Prover.Iterations, record.Verifier.Iterations)
	fmt.Printf("Record ID: %s\n", RecordID(record))
}

var measureCmd = &cobra.Command{
	Use:   "measure [address]",
	Short: "Measure latency to a listening peer",
	Long: `Dials a peer running 'pol listen' or 'pol node', runs a full
proof-of-latency exchange as the prover and prints the countersigned
result. Both peers must be configured with the same upper bound.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		session, _, err := sessionFromConfig()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		record, err := RunProver(args[0], session)
		if err != nil {
			fmt.Printf("Measurement failed: %v\n", err)
			os.Exit(1)
		}

		printRecord(record)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, _ := json.MarshalIndent(record, "", "  ")
			fmt.Println(string(data))
		}
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Answer inbound latency measurements",
	Long: `Listens for peers running 'pol measure' and answers each one as the
verifier. Completed records are printed; use 'pol node' for the persistent
service instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, config, err := sessionFromConfig()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		newSession := func() *Session {
			session, _, err := sessionFromConfig()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			return session
		}

		err = ServeVerifier(config.ListenOn, newSession, func(record *PoLRecord) {
			printRecord(record)
		})
		if err != nil {
			fmt.Printf("Listener failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit the squaring upper bound to this machine",
	Long: `Runs a throwaway VDF for a wall-clock budget and reports how many
sequential squarings this hardware fits into it. Pass --save to adopt the
measured count as the configured upper bound.`,
	Run: func(cmd *cobra.Command, args []string) {
		millis, _ := cmd.Flags().GetUint64("millis")
		save, _ := cmd.Flags().GetBool("save")

		config, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		modulus, err := config.ModulusInt()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Calibrating for %d ms...\n", millis)
		vdf := NewVDF(modulus, hashToMod(getCurrentTimestamp(), modulus), 0, ProofSequential)
		bound, err := vdf.EstimateUpperBound(millis)
		if err != nil {
			fmt.Printf("Calibration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d squarings in %d ms\n", bound, millis)

		if save {
			config.UpperBound = bound
			if err := saveConfig(config); err != nil {
				fmt.Printf("Error saving config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Upper bound saved\n")
		}
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the node identity key pair",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(keyPath()); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Printf("Identity key already exists at %s (use --force to overwrite)\n", keyPath())
				os.Exit(1)
			}
		}

		keys, err := GenerateKeyPair()
		if err != nil {
			fmt.Printf("Error generating key pair: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(configDir(), 0755); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := SaveKeyPair(keys, keyPath()); err != nil {
			fmt.Printf("Error saving key pair: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Identity key written to %s\n", keyPath())
		fmt.Printf("Public key: %s...\n", keys.PublicKeyHex()[:64])
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records [id]",
	Short: "List or show stored proof-of-latency records",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		store, err := OpenRecordStore(config.DataDirectory)
		if err != nil {
			fmt.Printf("Error opening record store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if len(args) == 1 {
			record, err := store.Get(args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			data, _ := json.MarshalIndent(record, "", "  ")
			fmt.Println(string(data))
			return
		}

		ids, err := store.List()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No records stored")
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

func init() {
	measureCmd.Flags().Bool("json", false, "Print the full record as JSON")
	calibrateCmd.Flags().Uint64("millis", 5000, "Calibration budget in milliseconds")
	calibrateCmd.Flags().Bool("save", false, "Save the measured bound to the config")
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing identity key")

	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(recordsCmd)
}
