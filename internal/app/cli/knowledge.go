package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// KnowledgeLoadAction は PDF をベクトルコレクションに読み込むコマンドのアクション
func KnowledgeLoadAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	recreate := cmd.Bool("recreate")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	stats, err := loadKnowledgeBase(ctx, appCtx.Container.KnowledgeBase, recreate, appCtx.Logger())
	if err != nil {
		return err
	}

	fmt.Printf("sources: %d, pages: %d, chunks: %d, inserted: %d, skipped: %d\n",
		stats.Sources, stats.Pages, stats.Chunks, stats.Inserted, stats.Skipped)
	return nil
}
