package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/config"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/http"
	"github.com/kerem-kaynak/tablecat/internal/utils"
	"go.uber.org/zap"
)

func main() {
	// Initialize context
	ctx, err := config.InitContext()
	if err != nil {
		log.Fatalf("Failed to initialize context: %v", err)
	}

	defer func() {
		if err := ctx.Logger.Sync(); err != nil {
			fmt.Printf("Failed to sync logger: %v\n", err)
		}
	}()

	// Ensure the database connection is closed when the application exits
	sqlDB, err := ctx.DB.DB()
	if err != nil {
		ctx.Logger.Fatal("Failed to get underlying SQL DB from GORM DB", zap.Error(err))
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			ctx.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// `tablecat token <email>` prints a bearer token for an existing user.
	if len(os.Args) == 3 && os.Args[1] == "token" {
		if err := printToken(ctx, os.Args[2]); err != nil {
			ctx.Logger.Fatal("Failed to issue token", zap.Error(err))
		}
		return
	}

	if err := serve(ctx); err != nil {
		ctx.Logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func serve(ctx *appcontext.Context) error {
	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := http.NewHTTPService(ctx)
	server := &nethttp.Server{
		Addr:    ctx.Addr,
		Handler: service.Engine(),
	}

	serverErr := make(chan error, 1)
	go func() {
		ctx.Logger.Info("Starting server", zap.String("addr", ctx.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-signalCtx.Done():
		ctx.Logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ctx.ShutdownTimeout)
	defer cancel()

	return errors.Join(server.Shutdown(shutdownCtx), ctx.Runner.Shutdown(shutdownCtx))
}

func printToken(ctx *appcontext.Context, email string) error {
	var user entity.User
	if err := ctx.DB.Where("email = ?", email).First(&user).Error; err != nil {
		return fmt.Errorf("failed to find user %s: %w", email, err)
	}

	token, err := utils.GenerateJWT(ctx.JWTSecret, user.ID.String(), ctx.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
