package timeline

import (
	"context"

	"livecast/server/internal/model"
)

type Store interface {
	// Append 以 append-first 的契约写入 step 记录，返回本次写入的 seq。
	// 约定：同一房间的 seq 单调递增；相同 Step 的记录幂等返回同一 seq。
	Append(ctx context.Context, roomID string, rec *model.StepRecord) (int64, error)
	// List 返回该房间的全部 step 记录，用于回放。
	List(ctx context.Context, roomID string) ([]model.StepRecord, error)
	// Reset 清空房间的记录，新一轮演出开始时调用。
	Reset(ctx context.Context, roomID string) error
}
