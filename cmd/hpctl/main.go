package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nergy-se/heatharmony/pkg/modbusclient"
)

var decimals = flag.Int("decimals", 1, "")

// hpctl reads or writes single registers on a modbus heat pump. Used to find the
// target and outlet registers for the modbus heat pump config.
func main() {
	address := flag.String("addr", "", "tcp modbus address")

	inputreg := flag.Int("inputreg", 0, "input reg")
	holdingreg := flag.Int("holdingreg", 0, "")
	coil := flag.Int("coil", 0, "")

	slaveID := flag.Int("slave", 1, "modbus slave id")
	value := flag.Int("value", 0, "value to write. will write any value")
	flag.Parse()

	client := modbusclient.NewTCP(*address, byte(*slaveID), 5*time.Second)
	defer client.Close()

	var f interface{}
	var err error
	if isFlagPassed("inputreg") {
		f, err = scale(client.ReadInputRegister(uint16(*inputreg)))
	}
	if isFlagPassed("holdingreg") {
		if isFlagPassed("value") {
			f, err = client.WriteSingleRegister(uint16(*holdingreg), modbusclient.Encode(*value))
		} else {
			f, err = scale(client.ReadHoldingRegister16(uint16(*holdingreg)))
		}
	}

	if isFlagPassed("coil") && isFlagPassed("value") {
		f, err = client.WriteSingleCoil(uint16(*coil), modbusclient.CoilValue(*value != 0))
	}

	if err != nil {
		log.Println("error was: ", err)
	}
	if v, ok := f.([]byte); ok {
		fmt.Printf("raw response: %# x (length: %d)\n", v, len(v))
	}
	log.Println("value is: ", f)
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

func IntPow(base, exp int) float64 {
	result := 1
	for {
		if exp&1 == 1 {
			result *= base
		}
		exp >>= 1
		if exp == 0 {
			break
		}
		base *= base
	}

	return float64(result)
}

func scale(i int, err error) (float64, error) {
	f := float64(i) / IntPow(10, *decimals)
	return f, err
}
