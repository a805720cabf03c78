package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/careline-backend/internal/app"
	"github.com/yungbote/careline-backend/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	a.Start()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	runErr := a.Run(ctx)
	a.Close()
	if runErr != nil {
		fmt.Printf("server exited: %v\n", runErr)
		os.Exit(1)
	}
}
