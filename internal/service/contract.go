package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/sync/singleflight"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
	"evrental-backend/internal/storage"
	"evrental-backend/internal/utils"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func contractMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

var contractTemplate = template.Must(template.New("contract").Funcs(template.FuncMap{
	"money": formatCents,
	"ts": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("2006-01-02 15:04 MST")
	},
}).Parse(`# Rental contract {{.ContractID}}

Reservation **{{.R.ID}}** for {{.CustomerName}}{{with .CustomerLicense}} (licence {{.}}){{end}}.

| | |
|---|---|
| Vehicle model | {{.ModelName}} |
| Vehicle | {{.R.VehicleInstanceID}} |
| Station | {{.StationName}} |
| Pickup | {{ts .R.PickupAt .Loc}} |
| Return | {{ts .R.ReturnAt .Loc}} |
| Payment | {{.R.TransactionID}} |

## Charges

| Item | Amount |
|---|---:|
| Rental ({{.R.Cost.BilledUnits}} units) | {{money .R.Cost.RentalCostCents}} |
| Deposit | {{money .R.Cost.DepositCents}} |
| Service fee | {{money .R.Cost.ServiceFeeCents}} |
| **Total** | **{{money .R.Cost.TotalCents}}** |

The deposit is refunded after the vehicle is returned undamaged.
`))

type contractView struct {
	ContractID      string
	R               *domain.Reservation
	CustomerName    string
	CustomerLicense string
	ModelName       string
	StationName     string
	Loc             *time.Location
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

type contractIssuer struct {
	contracts repository.ContractRepository
	customers repository.CustomerRepository
	catalog   repository.CatalogRepository
	docs      storage.DocumentStore
	now       func() time.Time
	group     singleflight.Group
}

// NewContractIssuer stamps contracts with now; nil means time.Now.
func NewContractIssuer(store repository.Store, docs storage.DocumentStore, now func() time.Time) ContractIssuer {
	if now == nil {
		now = time.Now
	}
	return &contractIssuer{
		contracts: store.Contracts(),
		customers: store.Customers(),
		catalog:   store.Catalog(),
		docs:      docs,
		now:       now,
	}
}

// Issue returns the contract of a confirmed reservation, creating it on first
// call. Every call for the same reservation yields the same contract. The
// shared issuance outlives the cancellation of whichever caller started it.
func (c *contractIssuer) Issue(ctx context.Context, r *domain.Reservation) (*domain.Contract, error) {
	key := r.IdempotencyKey
	if key == "" {
		key = utils.IdempotencyKey(r.ID)
	}

	detached := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.issue(detached, r, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("Contract issuance collapsed", "reservationID", r.ID)
	}
	return v.(*domain.Contract), nil
}

func (c *contractIssuer) issue(ctx context.Context, r *domain.Reservation, key string) (*domain.Contract, error) {
	logger.EnterMethod("contractIssuer.issue", "reservationID", r.ID)

	existing, err := c.contracts.GetByReservationID(ctx, r.ID)
	if err == nil {
		logger.ExitMethod("contractIssuer.issue", "contractID", existing.ID, "existing", true)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	contractID := utils.ContractID(key)
	doc, err := c.render(ctx, contractID, r)
	if err != nil {
		logger.ExitMethodWithError("contractIssuer.issue", err, "reservationID", r.ID)
		return nil, err
	}
	// The document is keyed like the contract, so a retry overwrites the
	// same bytes.
	if err := c.docs.SaveFile(ctx, key, bytes.NewReader(doc)); err != nil {
		logger.ExitMethodWithError("contractIssuer.issue", err, "reservationID", r.ID)
		return nil, fmt.Errorf("failed to store contract document: %w", err)
	}

	stored, created, err := c.contracts.CreateIfAbsent(ctx, &domain.Contract{
		ID:             contractID,
		ReservationID:  r.ID,
		IdempotencyKey: key,
		DocumentKey:    key,
		DocumentURL:    c.docs.DownloadURL(key),
		CreatedOn:      c.now().UTC(),
	})
	if err != nil {
		logger.ExitMethodWithError("contractIssuer.issue", err, "reservationID", r.ID)
		return nil, err
	}
	if created {
		logger.Info("Contract issued", "reservationID", r.ID, "contractID", stored.ID)
	}
	logger.ExitMethod("contractIssuer.issue", "contractID", stored.ID, "created", created)
	return stored, nil
}

// render produces the contract HTML. Output depends only on the reservation
// and reference data.
func (c *contractIssuer) render(ctx context.Context, contractID string, r *domain.Reservation) ([]byte, error) {
	view := contractView{
		ContractID:   contractID,
		R:            r,
		CustomerName: r.CustomerID,
		ModelName:    r.ModelID,
		StationName:  r.StationID,
		Loc:          time.UTC,
	}
	if customer, err := c.customers.GetByID(ctx, r.CustomerID); err == nil {
		view.CustomerName = customer.Name
		view.CustomerLicense = customer.LicenseNo
	}
	if model, err := c.catalog.GetModel(ctx, r.ModelID); err == nil {
		view.ModelName = model.Manufacturer + " " + model.Name
	}
	if station, err := c.catalog.GetStation(ctx, r.StationID); err == nil {
		view.StationName = station.Name
		if loc, err := station.Location(); err == nil {
			view.Loc = loc
		}
	}

	var md bytes.Buffer
	if err := contractTemplate.Execute(&md, view); err != nil {
		return nil, fmt.Errorf("failed to fill contract template: %w", err)
	}
	var html bytes.Buffer
	if err := contractMarkdown().Convert(md.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("failed to render contract: %w", err)
	}
	return html.Bytes(), nil
}
