package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vellum-graph/vellum/internal/storage"
	"github.com/vellum-graph/vellum/pkg/leaselock"
	"github.com/vellum-graph/vellum/pkg/logger"
	pgxstore "github.com/vellum-graph/vellum/pkg/store/pgx"
)

// GroupDeleteMsg is the payload of GroupDeleteQueue messages.
type GroupDeleteMsg struct {
	GroupID string `json:"group_id"`
}

// ProcessGroupDeleteMessage removes every graph record of a group plus its
// uploaded source files. The lease lock gives the delete exclusive access to
// the group so no concurrent reindex interleaves with the cascade.
func ProcessGroupDeleteMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(GroupDeleteMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.GroupID == "" {
		return errors.New("group delete message without group_id")
	}

	start := time.Now()
	lockClient := leaselock.New(conn)
	lease, err := lockClient.Acquire(ctx, "group:"+data.GroupID, leaselock.Options{
		TTL:         10 * time.Minute,
		RenewEvery:  4 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("delete/%s/", data.GroupID),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()

	st := pgxstore.NewGraphDBStore(conn)
	if err := st.DeleteGroup(lease.Context, data.GroupID); err != nil {
		return fmt.Errorf("failed to delete group graph: %w", err)
	}

	if s3Client != nil {
		if err := storage.DeleteFolder(ctx, s3Client, "groups/"+data.GroupID+"/"); err != nil {
			logger.Warn("[Queue] Failed to delete group files", "group", data.GroupID, "err", err)
		}
	}

	logger.Info("[Queue] Group delete completed", "group", data.GroupID, "duration_sec", time.Since(start).Seconds())
	return nil
}
