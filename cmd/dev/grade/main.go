// Command grade sends one grading request to the configured grader and prints
// the verdict. It is a development aid for checking webhook and model setups.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/grading"
	"github.com/garnizeh/contest/internal/schemas"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	title := flag.String("title", "Warmup", "Challenge title")
	description := flag.String("description", "Find the flag hidden in the page source.", "Challenge description")
	points := flag.Int("points", 100, "Challenge points")
	answer := flag.String("answer", "", "Answer text (read from stdin when empty)")
	attachments := flag.String("attachments", "", "Comma separated attachment URLs")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	loader, err := schemas.NewLoader()
	if err != nil {
		log.Fatal(err)
	}
	g, closeFn, err := grading.FromConfig(cfg, loader, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeFn()
	if g == nil {
		log.Fatal("grading provider is none; set CONTEST_GRADING_PROVIDER")
	}

	text := *answer
	if text == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal(err)
		}
		text = string(b)
	}

	req := grading.Request{
		AnswerText:           text,
		OpaqueUserRef:        grading.UserRef(cfg.Grading.UserRefSalt, 0),
		ChallengeTitle:       *title,
		ChallengeDescription: *description,
		MaxPoints:            *points,
	}
	if *attachments != "" {
		req.AttachmentURLs = strings.Split(*attachments, ",")
	}

	ctx := context.Background()
	res, err := g.Grade(ctx, req)
	if err != nil {
		log.Fatalf("grade: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal(err)
	}
	if pts, ok := res.Approval(); ok {
		fmt.Printf("would auto-approve with %d points\n", pts)
	} else {
		fmt.Println("would stay pending for manual review")
	}
}
