/*
Copyright © 2025 Rijksmuseum

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd is the base command for the retrieval CLI, a thin smoke-test
// harness over the five query-planning engines.
var rootCmd = &cobra.Command{
	Use:   "rijksdata",
	Short: "Query planning and retrieval over the Rijksmuseum linked-data catalogue",
	Long: `rijksdata queries the Rijksmuseum's linked-data catalogue of roughly
830,000 artworks: structured vocabulary search, semantic vector search,
Linked Art object detail, Iconclass notation browsing, and OAI-PMH
change-feed harvesting.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.rijksdata.yaml or $HOME/.rijksdata.yaml)")

	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSemanticCmd())
	rootCmd.AddCommand(newDetailCmd())
	rootCmd.AddCommand(newBibliographyCmd())
	rootCmd.AddCommand(newImageCmd())
	rootCmd.AddCommand(newIconclassCmd())
	rootCmd.AddCommand(newOAICmd())
}
