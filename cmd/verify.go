package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/powerprep/internal/matrix"
	"github.com/sells-group/powerprep/internal/normalize"
)

var (
	verifyCombined   string
	verifyNormalized string
	verifyParams     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that stored parameters reproduce the normalized artifact",
	Long: `Loads the persisted parameter table, re-applies it to the combined
matrix, and compares the rendered result byte-for-byte against the
normalized artifact. A mismatch means the artifacts do not belong to the
same run or the parameter table was altered.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if verifyCombined == "" || verifyNormalized == "" || verifyParams == "" {
			return eris.New("verify: --combined, --normalized and --params are all required")
		}

		combined, err := matrix.ReadCSV(verifyCombined)
		if err != nil {
			return err
		}
		params, err := normalize.ReadParams(verifyParams)
		if err != nil {
			return err
		}

		reproduced, err := normalize.Apply(combined, params)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := matrix.WriteCSVTo(reproduced, &buf); err != nil {
			return err
		}

		want, err := os.ReadFile(verifyNormalized)
		if err != nil {
			return eris.Wrap(err, "verify: read normalized artifact")
		}

		if !bytes.Equal(buf.Bytes(), want) {
			return eris.Errorf("verify: reproduced matrix differs from %s", verifyNormalized)
		}

		fmt.Printf("OK: %s reproduces %s exactly\n", verifyParams, verifyNormalized)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCombined, "combined", "", "combined wide matrix csv")
	verifyCmd.Flags().StringVar(&verifyNormalized, "normalized", "", "normalized matrix csv")
	verifyCmd.Flags().StringVar(&verifyParams, "params", "", "normalization parameter table csv")
	rootCmd.AddCommand(verifyCmd)
}
