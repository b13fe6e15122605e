package interfaces

import (
	"context"

	"foundry/shared/models"
)

// CampaignPublisher ставит рассылку в очередь для воркера notifier.
type CampaignPublisher interface {
	PublishCampaign(ctx context.Context, req models.CampaignRequest) error
}
