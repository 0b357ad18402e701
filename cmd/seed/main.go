package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/database"
	"github.com/siddharthareddy0/quiz-hosting/internal/logger"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/repository"
	"github.com/siddharthareddy0/quiz-hosting/internal/service"
	"golang.org/x/term"
)

// Seeds an admin account, a handful of candidate accounts, and one sample
// exam, then prints ready-to-use bearer tokens for local development.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	authService := service.NewAuthService(cfg)

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Seed Quiz Hosting Data ===")

	// Admin account
	fmt.Print("Admin email [admin@example.com]: ")
	adminEmail, _ := reader.ReadString('\n')
	adminEmail = strings.TrimSpace(adminEmail)
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}

	fmt.Print("Admin password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	if len(bytePassword) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	hash, err := authService.HashPassword(string(bytePassword))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	admin, err := ensureUser(ctx, userRepo, &model.User{
		Name:         "Exam Admin",
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed admin")
	}

	// Candidate accounts
	candidates := make([]*model.User, 0, 3)
	for i := 1; i <= 3; i++ {
		candidate, err := ensureUser(ctx, userRepo, &model.User{
			Name:         fmt.Sprintf("Candidate %d", i),
			Email:        fmt.Sprintf("candidate%d@example.com", i),
			PasswordHash: hash,
			Role:         model.RoleCandidate,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed candidate")
		}
		candidates = append(candidates, candidate)
	}

	// Sample exam, open for the next 7 days.
	now := time.Now()
	exam := &model.Exam{
		Title:                   "Physics: Kinematics",
		Description:             "Sample seeded exam",
		Instructions:            "Stay in fullscreen for the duration of the exam.",
		StartAt:                 now.Add(-time.Hour),
		EndAt:                   now.Add(7 * 24 * time.Hour),
		DurationMinutes:         30,
		NegativeMarking:         true,
		NegativeMarkPerQuestion: 0.25,
		Questions: []model.Question{
			{
				ID:     "q1",
				Prompt: "A body moves with constant velocity. Its acceleration is:",
				Options: []model.Option{
					{ID: "a", Text: "Zero"},
					{ID: "b", Text: "Constant and non-zero"},
					{ID: "c", Text: "Increasing"},
					{ID: "d", Text: "Decreasing"},
				},
				CorrectOptionID: "a",
				Marks:           1,
				Explanation:     "Constant velocity means no change in velocity, so acceleration is zero.",
			},
			{
				ID:     "q2",
				Prompt: "The slope of a position-time graph gives:",
				Options: []model.Option{
					{ID: "a", Text: "Acceleration"},
					{ID: "b", Text: "Velocity"},
					{ID: "c", Text: "Displacement"},
					{ID: "d", Text: "Jerk"},
				},
				CorrectOptionID: "b",
				Marks:           1,
			},
			{
				ID:     "q3",
				Prompt: "Which quantity is a vector?",
				Options: []model.Option{
					{ID: "a", Text: "Speed"},
					{ID: "b", Text: "Distance"},
					{ID: "c", Text: "Displacement"},
					{ID: "d", Text: "Time"},
				},
				CorrectOptionID: "c",
				Marks:           2,
			},
		},
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}

	// ─── Print Tokens ──────────────────────────────────────────────────
	fmt.Println("\nSeed complete.")
	fmt.Printf("Exam ID: %s\n\n", exam.ID)

	adminToken, err := authService.GenerateAdminToken(admin.ID, admin.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate admin token")
	}
	fmt.Printf("Admin token (%s):\n  %s\n\n", admin.Email, adminToken)

	for _, c := range candidates {
		token, err := authService.GenerateCandidateToken(c.ID, c.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate candidate token")
		}
		fmt.Printf("Candidate token (%s):\n  %s\n\n", c.Email, token)
	}
}

// ensureUser creates the user or returns the existing account with the same
// email, so reseeding is safe.
func ensureUser(ctx context.Context, repo *repository.UserRepository, u *model.User) (*model.User, error) {
	existing, err := repo.GetByEmail(ctx, u.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err := repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
