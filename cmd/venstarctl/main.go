package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nergy-se/venstar-bridge/pkg/controller/thermostat"
	"github.com/nergy-se/venstar-bridge/pkg/venstar"
)

func main() {
	address := flag.String("addr", "", "thermostat address, host[:port] or http url")
	info := flag.Bool("info", false, "print /query/info and the normalized state")
	timeout := flag.Duration("timeout", 10*time.Second, "http timeout")

	mode := flag.Int("mode", 0, "mode to write 0=off 1=heat 2=cool 3=auto")
	fan := flag.Int("fan", 0, "fan to write 0=auto 1=on")
	heattemp := flag.Float64("heattemp", 0, "heat setpoint to write in the device unit")
	cooltemp := flag.Float64("cooltemp", 0, "cool setpoint to write in the device unit")
	flag.Parse()

	if *address == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	client := venstar.NewClient(*address, *timeout)

	current, err := client.Info(ctx)
	if err != nil {
		log.Fatal("error was: ", err)
	}

	if *info {
		printJSON("raw response", current)
		s, err := thermostat.Normalize(current, nil)
		if err != nil {
			log.Println("error normalizing: ", err)
		} else {
			printJSON("normalized", s.Map())
		}
	}

	if !isFlagPassed("mode") && !isFlagPassed("fan") && !isFlagPassed("heattemp") && !isFlagPassed("cooltemp") {
		return
	}

	// unset values are taken from the device so the write is always complete.
	cr := venstar.ControlRequest{
		Mode:     current.Mode,
		Fan:      current.Fan,
		HeatTemp: current.HeatTemp,
		CoolTemp: current.CoolTemp,
	}
	if isFlagPassed("mode") {
		cr.Mode = *mode
	}
	if isFlagPassed("fan") {
		cr.Fan = *fan
	}
	if isFlagPassed("heattemp") {
		cr.HeatTemp = *heattemp
	}
	if isFlagPassed("cooltemp") {
		cr.CoolTemp = *cooltemp
	}

	fmt.Printf("writing /control?%s\n", cr.Query())
	resp, err := client.Control(ctx, cr)
	if err != nil {
		log.Fatal("error was: ", err)
	}
	printJSON("response", resp)
}

func printJSON(title string, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Println("error was: ", err)
		return
	}
	fmt.Printf("%s:\n%s\n", title, b)
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
