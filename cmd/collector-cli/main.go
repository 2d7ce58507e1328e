package main

import (
	"context"

	"reviewharvest-backend/cmd/collector-cli/commands"
	"reviewharvest-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.SetupFromEnv(ctx, "collector-cli")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
