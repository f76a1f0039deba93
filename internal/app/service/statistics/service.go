package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

type StatisticType string

const (
	// Payments ledger
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyRevenue      StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue      StatisticType = "total_revenue"

	// Subscriptions
	StatisticTypeSubscriptionStatusCount StatisticType = "subscription_status_count"
	StatisticTypeDailyNewSubscriptions   StatisticType = "daily_new_subscription_count"

	// Entitlement changes
	StatisticTypeDailyDowngradeCount StatisticType = "daily_downgrade_count"
)

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	// Filters apply to payment statistics, on payments columns.
	Filters   types.Filters `json:"filters"`
	DataItems []*DataItem   `json:"data_items"`
}

// ResponseDataItem is one point of a series. Money values are in paise.
type ResponseDataItem struct {
	Date   string `json:"date,omitempty"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseDataItem `json:"data_items"`
}

// Service computes admin dashboard statistics straight from the tables.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (r *Request) Validate() error {
	if len(r.DataItems) == 0 {
		return fmt.Errorf("no data items requested")
	}
	return r.Filters.Validate(repository.PaymentListFields)
}

func (s *Service) where(request *Request) clause.Expression {
	return clause.Where{Exprs: []clause.Expression{request.Filters}}
}

func (s *Service) getDailyPaymentCount(ctx context.Context, request *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Table("payments").
		Select("TO_CHAR(DATE(created_at), 'YYYY-MM-DD') as date, status as label, COUNT(*) as value").
		Clauses(s.where(request)).
		Group("DATE(created_at), status").
		Order("date DESC, label").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Table("payments").
		Select("TO_CHAR(DATE(created_at), 'YYYY-MM-DD') as date, currency as label, CAST(SUM(amount) * 100 AS BIGINT) as value, COUNT(*) as value2").
		Clauses(s.where(request)).
		Where("status = ?", types.PaymentRecordStatusCaptured).
		Group("DATE(created_at), currency").
		Order("date DESC, label").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRevenue(ctx context.Context, request *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Table("payments").
		Select("currency as label, CAST(COALESCE(SUM(amount), 0) * 100 AS BIGINT) as value, COUNT(*) as value2").
		Clauses(s.where(request)).
		Where("status = ?", types.PaymentRecordStatusCaptured).
		Group("currency").
		Order("label").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getSubscriptionStatusCount(ctx context.Context, _ *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Table("subscriptions").
		Select("status as label, COUNT(*) as value, COUNT(*) FILTER (WHERE auto_renew) as value2").
		Group("status").
		Order("label").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptions(ctx context.Context, _ *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') as date, plan_type as label, COUNT(*) as value
FROM subscriptions
GROUP BY DATE(created_at), plan_type
ORDER BY date DESC, label`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyDowngradeCount(ctx context.Context, _ *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT TO_CHAR(DATE(changed_at), 'YYYY-MM-DD') as date, COUNT(*) as value
FROM plan_history
WHERE new_plan = ? AND changed_by IS NULL
GROUP BY DATE(changed_at)
ORDER BY date DESC`, types.PlanFree).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *Request, dataItem *DataItem) ([]ResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, request)
	case StatisticTypeSubscriptionStatusCount:
		return s.getSubscriptionStatusCount(ctx, request)
	case StatisticTypeDailyNewSubscriptions:
		return s.getDailyNewSubscriptions(ctx, request)
	case StatisticTypeDailyDowngradeCount:
		return s.getDailyDowngradeCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistics computes every requested data item concurrently.
func (s *Service) GetStatistics(ctx context.Context, request *Request) (*Response, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []ResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *DataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []ResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]ResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &Response{DataItems: results}, nil
}
