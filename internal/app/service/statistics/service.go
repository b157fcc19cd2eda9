package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/types"
)

type StatisticType string

const (
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyGmv          StatisticType = "daily_gmv"
	StatisticTypeTotalGmv          StatisticType = "total_gmv"
	StatisticTypeSuccessRate       StatisticType = "daily_success_rate"

	StatisticTypeDailyNewSubscriberCount StatisticType = "daily_new_subscriber_count"
	StatisticTypeActiveSubscriberCount   StatisticType = "active_subscriber_count"
)

// Filter fields that only some statistic types understand.
type PaymentStatisticFilterType string

const (
	PaymentStatisticFilterTypePlanID PaymentStatisticFilterType = "plan_id"
	PaymentStatisticFilterTypeStatus PaymentStatisticFilterType = "status"
)

var filterTypes = []PaymentStatisticFilterType{
	PaymentStatisticFilterTypePlanID,
	PaymentStatisticFilterTypeStatus,
}

var validFilters = map[PaymentStatisticFilterType][]StatisticType{
	PaymentStatisticFilterTypePlanID: {StatisticTypeDailyPaymentCount, StatisticTypeDailyGmv, StatisticTypeSuccessRate},
	PaymentStatisticFilterTypeStatus: {StatisticTypeDailyPaymentCount},
}

type PaymentStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type PaymentStatisticRequest struct {
	Filters   []*types.CommonFilter       `json:"filters"`
	DataItems []*PaymentStatisticDataItem `json:"data_items"`
}

func (f *PaymentStatisticRequest) GetFilters(statisticType StatisticType) *PaymentStatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result PaymentStatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[PaymentStatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return &result
}

// Build composes a WHERE clause from the request filters.
func (f *PaymentStatisticRequest) Build(builder clause.Builder) {
	if f == nil || len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type PaymentStatisticResponseDataItem struct {
	Date   string `json:"date"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
	Value3 int64  `json:"value3,omitempty"`
}

type PaymentStatisticResponse struct {
	DataItems map[StatisticType][]PaymentStatisticResponseDataItem `json:"data_items"`
}

// Service reports payment and subscriber aggregates for the admin API.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Service { return &Service{db: db, now: time.Now} }

func (s *Service) paymentTable(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table((models.PaymentRequest{}).TableName())
}

func (s *Service) getDailyPaymentCount(ctx context.Context, request *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	q := s.paymentTable(ctx).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyPaymentCount)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("status").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getDailyGmv sums settled amounts (KES) per day and plan.
func (s *Service) getDailyGmv(ctx context.Context, request *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	q := s.paymentTable(ctx).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, plan_id AS label, sum(amount) as value").
		Where("status = ?", types.PaymentStatusCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyGmv)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("plan_id").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getTotalGmv returns the running total of settled amounts per day and plan.
func (s *Service) getTotalGmv(ctx context.Context, _ *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH settled AS (
    SELECT * FROM payment_requests WHERE status = ?
),
min_max_dates AS (
    SELECT MIN(DATE(created_at)) as min_date, MAX(DATE(created_at)) as max_date FROM settled
),
distinct_dates AS (
    SELECT generate_series(min_date, max_date, '1 day'::interval) as date FROM min_max_dates
),
dates AS (
    SELECT TO_CHAR(date, 'YYYY-MM-DD') as date FROM distinct_dates
),
plans AS (
    SELECT DISTINCT plan_id as label FROM settled
),
date_plan_combinations AS (
    SELECT d.date, p.label FROM dates d CROSS JOIN plans p
),
gmv_date AS (
    SELECT dp.date, dp.label, COALESCE(SUM(t.amount), 0) as value
    FROM date_plan_combinations dp
    LEFT JOIN settled t
      ON TO_CHAR(t.created_at, 'YYYY-MM-DD') = dp.date
     AND t.plan_id = dp.label
    GROUP BY dp.date, dp.label
)
SELECT d.date as date, d.label as label, SUM(s.value) as value
FROM gmv_date d
LEFT JOIN gmv_date s ON s.date <= d.date AND s.label = d.label
GROUP BY d.date, d.label
ORDER BY d.date DESC, d.label ASC
`, types.PaymentStatusCompleted).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// getSuccessRate reports, per day, the share of finished pushes that completed
// in basis points, with the finished and completed counts in value2 and value3.
func (s *Service) getSuccessRate(ctx context.Context, request *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	q := s.paymentTable(ctx).
		Select(`TO_CHAR(created_at, 'YYYY-MM-DD') as date,
  CAST(ROUND(count(*) FILTER (WHERE status = ?) * 10000.0 / count(*)) AS INTEGER) as value,
  count(*) as value2,
  count(*) FILTER (WHERE status = ?) as value3`, types.PaymentStatusCompleted, types.PaymentStatusCompleted).
		Where("status IN ?", []types.PaymentStatus{types.PaymentStatusCompleted, types.PaymentStatusFailed}).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeSuccessRate)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriberCount(ctx context.Context, _ *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscriber{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveSubscriberCount(ctx context.Context, _ *PaymentStatisticRequest) ([]PaymentStatisticResponseDataItem, error) {
	var results []PaymentStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscriber{}).TableName()).
		Select("subscription_tier as label, count(*) as value").
		Where("subscribed = ?", true).
		Where("subscription_end >= ?", s.now()).
		Group("subscription_tier").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *PaymentStatisticRequest, dataItem *PaymentStatisticDataItem) ([]PaymentStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, request)
	case StatisticTypeDailyGmv:
		return s.getDailyGmv(ctx, request)
	case StatisticTypeTotalGmv:
		return s.getTotalGmv(ctx, request)
	case StatisticTypeSuccessRate:
		return s.getSuccessRate(ctx, request)
	case StatisticTypeDailyNewSubscriberCount:
		return s.getDailyNewSubscriberCount(ctx, request)
	case StatisticTypeActiveSubscriberCount:
		return s.getActiveSubscriberCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetPaymentStatistic computes every requested data item concurrently. A data
// item that cannot honour one of the special filters comes back empty.
func (s *Service) GetPaymentStatistic(ctx context.Context, request *PaymentStatisticRequest) (*PaymentStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []PaymentStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *PaymentStatisticDataItem) {
			defer wg.Done()
			for _, filter := range request.Filters {
				ft := PaymentStatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []PaymentStatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []PaymentStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]PaymentStatisticResponseDataItem)
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
	return &PaymentStatisticResponse{DataItems: results}, nil
}
