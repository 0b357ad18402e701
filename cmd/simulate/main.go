package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/siddharthareddy0/quiz-hosting/internal/client"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/logger"
)

// Drives one scripted candidate session against a running server: start,
// answer the paper, trip a recovery window, restore, and submit. Useful for
// smoke-testing a deployment end to end.
func main() {
	var (
		baseURL     string
		token       string
		examIDStr   string
		fingerprint string
	)
	flag.StringVar(&baseURL, "base", "http://localhost:8080", "Server base URL")
	flag.StringVar(&token, "token", "", "Candidate bearer token (from the seed tool)")
	flag.StringVar(&examIDStr, "exam", "", "Exam ID")
	flag.StringVar(&fingerprint, "fingerprint", "sim-device-1", "Device fingerprint")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if token == "" || examIDStr == "" {
		fmt.Println("Usage: simulate -token <jwt> -exam <uuid> [-base url] [-fingerprint id]")
		os.Exit(1)
	}
	examID, err := uuid.Parse(examIDStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid exam ID")
	}

	sdk := client.New(baseURL, token, fingerprint, examID)
	runner := client.NewRunner(sdk, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	paper, err := sdk.Paper(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch paper")
	}
	log.Info().Str("title", paper.Title).Int("questions", len(paper.Questions)).Msg("Paper loaded")

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// Give Run a moment to resume the session before feeding signals.
	time.Sleep(2 * time.Second)

	runner.PageLoad("navigate")
	runner.FullscreenChange(true)

	// Answer every question with its first option.
	for i, q := range paper.Questions {
		runner.GoToQuestion(i)
		if len(q.Options) > 0 {
			runner.SelectAnswer(q.ID, q.Options[0].ID)
		}
		time.Sleep(500 * time.Millisecond)
	}

	// Trip a recovery window and restore inside the grace period.
	log.Info().Msg("Simulating a fullscreen exit")
	runner.FullscreenChange(false)
	time.Sleep(3 * time.Second)
	log.Info().Msg("Restoring fullscreen")
	runner.FullscreenChange(true)

	// Let a progress save go out, then submit.
	time.Sleep(2 * time.Second)
	runner.Submit()

	if err := <-done; err != nil {
		log.Fatal().Err(err).Msg("Session failed")
	}

	result := runner.Result()
	if result == nil {
		log.Fatal().Msg("No submission result recorded")
	}
	log.Info().
		Float64("score", result.Score).
		Float64("max_score", result.MaxScore).
		Msg("Session complete")

	review, err := sdk.Review(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch review")
	}
	for _, key := range review.Key {
		fmt.Printf("%s: correct option %s\n", key.QuestionID, key.CorrectOptionID)
	}
}
