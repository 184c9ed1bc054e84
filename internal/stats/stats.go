// Package stats вычисляет агрегаты дашборда по снимку заказов, записей и каталога.
// Функции пакета не меняют входные данные и детерминированы: одинаковый снимок даёт одинаковый результат.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/period"
)

// Uncategorized используется для товаров, категорию которых не удалось определить.
const Uncategorized = "Uncategorized"

// Snapshot содержит согласованный на момент чтения срез данных.
type Snapshot struct {
	Users        []model.User
	Orders       []model.Order
	Appointments []model.Appointment
	Products     []model.Product
	Categories   []model.Category
}

// Growth содержит изменение метрик к предыдущему периоду, в процентах.
type Growth struct {
	Revenue      int `json:"revenue"`
	Orders       int `json:"orders"`
	Users        int `json:"users"`
	Appointments int `json:"appointments"`
}

// Overview содержит сводку дашборда администратора.
type Overview struct {
	TotalUsers        int    `json:"total_users"`
	TotalOrders       int    `json:"total_orders"`
	TotalProducts     int    `json:"total_products"`
	TotalAppointments int    `json:"total_appointments"`
	TotalRevenue      int64  `json:"total_revenue"`
	Growth            Growth `json:"growth"`
}

// GrowthPercent считает изменение cur к prev в процентах с округлением.
// При prev == 0 результат 100, если cur > 0, иначе 0.
func GrowthPercent(cur, prev int64) int {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(cur-prev) / float64(prev) * 100))
}

// countedOrder сообщает, учитывается ли заказ в счётчиках и выручке графика продаж.
func countedOrder(o *model.Order) bool {
	return o.Status == model.OrderPending || o.Status == model.OrderConfirmed
}

// soldOrder сообщает, учитываются ли позиции заказа в проданных единицах.
func soldOrder(o *model.Order) bool {
	return o.Status != model.OrderCancelled && o.Status != model.OrderRefunded
}

type windowTotals struct {
	orders       int64
	revenue      int64
	newUsers     int64
	appointments int64
}

func totalsFor(s Snapshot, r period.Range) windowTotals {
	var t windowTotals
	for i := range s.Orders {
		o := &s.Orders[i]
		if !r.Contains(o.CreatedAt) {
			continue
		}
		if countedOrder(o) {
			t.orders++
		}
		if o.Status == model.OrderConfirmed {
			t.revenue += o.Total
		}
	}
	for i := range s.Users {
		if r.Contains(s.Users[i].CreatedAt) {
			t.newUsers++
		}
	}
	for i := range s.Appointments {
		if r.Contains(s.Appointments[i].CreatedAt) {
			t.appointments++
		}
	}
	return t
}

// DashboardOverview строит сводку за интервал r и прирост к предыдущему интервалу той же длины.
func DashboardOverview(s Snapshot, r period.Range) Overview {
	cur := totalsFor(s, r)
	prev := totalsFor(s, r.Previous())

	users := 0
	for i := range s.Users {
		if s.Users[i].CreatedAt.Before(r.End) {
			users++
		}
	}

	return Overview{
		TotalUsers:        users,
		TotalOrders:       int(cur.orders),
		TotalProducts:     len(s.Products),
		TotalAppointments: int(cur.appointments),
		TotalRevenue:      cur.revenue,
		Growth: Growth{
			Revenue:      GrowthPercent(cur.revenue, prev.revenue),
			Orders:       GrowthPercent(cur.orders, prev.orders),
			Users:        GrowthPercent(cur.newUsers, prev.newUsers),
			Appointments: GrowthPercent(cur.appointments, prev.appointments),
		},
	}
}

// GroupBy задаёт единицу группировки временного ряда.
type GroupBy string

const (
	ByDay   GroupBy = "day"
	ByWeek  GroupBy = "week"
	ByMonth GroupBy = "month"
)

// ParseGroupBy возвращает единицу группировки, по умолчанию день.
func ParseGroupBy(s string) GroupBy {
	switch g := GroupBy(s); g {
	case ByDay, ByWeek, ByMonth:
		return g
	}
	return ByDay
}

// SeriesPoint содержит значение ряда продаж в одном интервале группировки.
type SeriesPoint struct {
	Bucket       string    `json:"bucket"`
	Start        time.Time `json:"start"`
	Orders       int       `json:"orders"`
	Revenue      int64     `json:"revenue"`
	Appointments int       `json:"appointments"`
}

// BucketStart возвращает начало интервала группировки, в который попадает t.
// Недели начинаются с понедельника.
func BucketStart(t time.Time, g GroupBy, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	switch g {
	case ByWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case ByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return day
	}
}

func bucketLabel(start time.Time, g GroupBy) string {
	if g == ByMonth {
		return start.Format("2006-01")
	}
	return start.Format(model.DateLayout)
}

// SalesSeries строит ряд заказов, выручки и записей по интервалам группировки, по возрастанию времени.
// Интервал присутствует, если в нём есть заказы или записи; недостающая сторона равна нулю.
func SalesSeries(s Snapshot, r period.Range, g GroupBy) []SeriesPoint {
	g = ParseGroupBy(string(g))
	loc := r.Location()
	points := make(map[int64]*SeriesPoint)

	point := func(t time.Time) *SeriesPoint {
		start := BucketStart(t, g, loc)
		key := start.Unix()
		p, ok := points[key]
		if !ok {
			p = &SeriesPoint{Bucket: bucketLabel(start, g), Start: start}
			points[key] = p
		}
		return p
	}

	for i := range s.Orders {
		o := &s.Orders[i]
		if !r.Contains(o.CreatedAt) || !countedOrder(o) {
			continue
		}
		p := point(o.CreatedAt)
		p.Orders++
		p.Revenue += o.Total
	}
	for i := range s.Appointments {
		a := &s.Appointments[i]
		if !r.Contains(a.CreatedAt) {
			continue
		}
		point(a.CreatedAt).Appointments++
	}

	res := make([]SeriesPoint, 0, len(points))
	for _, p := range points {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Start.Before(res[j].Start) })
	return res
}

// CategoryShare описывает долю категории в проданных единицах.
type CategoryShare struct {
	CategoryID string `json:"category_id,omitempty"`
	Name       string `json:"name"`
	Products   int    `json:"products"`
	UnitsSold  int    `json:"units_sold"`
	Percentage int    `json:"percentage"`
}

type catalog struct {
	products   map[string]*model.Product
	categories map[string]string
}

func newCatalog(s Snapshot) catalog {
	c := catalog{
		products:   make(map[string]*model.Product, len(s.Products)),
		categories: make(map[string]string, len(s.Categories)),
	}
	for i := range s.Products {
		c.products[s.Products[i].ID] = &s.Products[i]
	}
	for _, cat := range s.Categories {
		c.categories[cat.ID] = cat.Name
	}
	return c
}

// categoryOf возвращает идентификатор и имя категории товара; пустой идентификатор означает Uncategorized.
func (c catalog) categoryOf(productID string) (string, string) {
	p, ok := c.products[productID]
	if !ok {
		return "", Uncategorized
	}
	name, ok := c.categories[p.CategoryID]
	if !ok {
		return "", Uncategorized
	}
	return p.CategoryID, name
}

// CategoryDistribution считает по категориям число товаров, проданные за интервал единицы и их долю.
// Доли округляются независимо, поэтому их сумма может отличаться от 100.
func CategoryDistribution(s Snapshot, r period.Range) []CategoryShare {
	c := newCatalog(s)
	shares := make(map[string]*CategoryShare)

	share := func(id, name string) *CategoryShare {
		sh, ok := shares[id]
		if !ok {
			sh = &CategoryShare{CategoryID: id, Name: name}
			shares[id] = sh
		}
		return sh
	}

	for _, cat := range s.Categories {
		share(cat.ID, cat.Name)
	}
	for i := range s.Products {
		id, name := c.categoryOf(s.Products[i].ID)
		share(id, name).Products++
	}

	total := 0
	for i := range s.Orders {
		o := &s.Orders[i]
		if !r.Contains(o.CreatedAt) || !soldOrder(o) {
			continue
		}
		for _, it := range o.Items {
			id, name := c.categoryOf(it.ProductID)
			share(id, name).UnitsSold += it.Quantity
			total += it.Quantity
		}
	}

	res := make([]CategoryShare, 0, len(shares))
	for _, sh := range shares {
		if total > 0 {
			sh.Percentage = int(math.Round(float64(sh.UnitsSold) / float64(total) * 100))
		}
		res = append(res, *sh)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UnitsSold != res[j].UnitsSold {
			return res[i].UnitsSold > res[j].UnitsSold
		}
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].CategoryID < res[j].CategoryID
	})
	return res
}

// TopProduct описывает товар в рейтинге продаж.
type TopProduct struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	UnitsSold    int    `json:"units_sold"`
	Revenue      int64  `json:"revenue"`
}

const (
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// TopProducts возвращает limit самых продаваемых за интервал товаров по убыванию проданных единиц.
func TopProducts(s Snapshot, limit int, r period.Range) []TopProduct {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	limit = min(limit, maxTopLimit)

	c := newCatalog(s)
	byID := make(map[string]*TopProduct)

	for i := range s.Orders {
		o := &s.Orders[i]
		if !r.Contains(o.CreatedAt) || !soldOrder(o) {
			continue
		}
		for _, it := range o.Items {
			tp, ok := byID[it.ProductID]
			if !ok {
				name := it.Name
				if p, found := c.products[it.ProductID]; found {
					name = p.Name
				}
				_, catName := c.categoryOf(it.ProductID)
				tp = &TopProduct{ProductID: it.ProductID, Name: name, CategoryName: catName}
				byID[it.ProductID] = tp
			}
			tp.UnitsSold += it.Quantity
			tp.Revenue += it.LineTotal()
		}
	}

	res := make([]TopProduct, 0, len(byID))
	for _, tp := range byID {
		res = append(res, *tp)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UnitsSold != res[j].UnitsSold {
			return res[i].UnitsSold > res[j].UnitsSold
		}
		if res[i].Revenue != res[j].Revenue {
			return res[i].Revenue > res[j].Revenue
		}
		return res[i].ProductID < res[j].ProductID
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

// Activity описывает запись ленты последних действий.
type Activity struct {
	Kind      string     `json:"kind"`
	EntityID  string     `json:"entity_id"`
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Note      string     `json:"note,omitempty"`
	ActorID   string     `json:"actor_id"`
	ActorRole model.Role `json:"actor_role"`
	At        time.Time  `json:"at"`
}

// Activities собирает журналы переходов записей и заказов, новые сверху.
func Activities(s Snapshot, limit int) []Activity {
	var res []Activity
	for i := range s.Appointments {
		a := &s.Appointments[i]
		ref := string(a.ServiceType) + " " + a.Date.Format(model.DateLayout) + " " + string(a.TimeSlot)
		for _, h := range a.History {
			res = append(res, activity(events.AggregateAppointment, a.ID, ref, h))
		}
	}
	for i := range s.Orders {
		o := &s.Orders[i]
		for _, h := range o.History {
			res = append(res, activity(events.AggregateOrder, o.ID, o.Number, h))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].At.Equal(res[j].At) {
			return res[i].At.After(res[j].At)
		}
		if res[i].EntityID != res[j].EntityID {
			return res[i].EntityID < res[j].EntityID
		}
		return res[i].Status < res[j].Status
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func activity(kind, id, ref string, h model.HistoryEntry) Activity {
	return Activity{
		Kind:      kind,
		EntityID:  id,
		Reference: ref,
		Status:    h.Status,
		Note:      h.Note,
		ActorID:   h.ActorID,
		ActorRole: h.ActorRole,
		At:        h.At,
	}
}
