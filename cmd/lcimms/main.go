// lcimms - LC-IM-MS feature detection, MS2 deconvolution and annotation
package main

import (
	"fmt"
	"os"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/cmd/lcimms/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
