package main

import (
	"flag"
	"fmt"
	"os"

	"clipfarm/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", "http://localhost:8080", "Production API URL")
	id := flag.String("id", "", "Production id to watch (default: newest)")
	product := flag.String("product", "", "Start a production for this product URL")
	tone := flag.String("tone", "", "Tone of a new production")
	duration := flag.Int("duration", 0, "Target seconds of a new production")
	voice := flag.String("voice", "", "Voice used when producing audio")
	track := flag.String("track", "auto", "Background track used when producing audio")
	flag.Parse()

	m := tui.NewModel(tui.Options{
		BaseURL:  *baseURL,
		ID:       *id,
		URL:      *product,
		Tone:     *tone,
		Duration: *duration,
		Voice:    *voice,
		Track:    *track,
	})

	// bubbletea handles ctrl+c itself
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
