// Command iotanomaly runs the IoT anomaly dashboard and its offline tools.
package main

import (
	"os"

	"github.com/kandarlubis31/iot-anomaly-detector/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
