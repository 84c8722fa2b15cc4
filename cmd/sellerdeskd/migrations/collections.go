// ABOUTME: PocketBase collections for sellerdeskd: orders, customers, products,
// ABOUTME: profiles and contact messages, each owner-scoped by API rules.

package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Owner rules. Every API read and write is limited to rows owned by the
// authenticated user; the realtime fan-out follows the list rule.
const (
	OwnerRule  = "owner = @request.auth.id"
	CreateRule = "@request.auth.id != '' && @request.body.owner = @request.auth.id"
	UpdateRule = "owner = @request.auth.id && (@request.body.owner:isset = false || @request.body.owner = @request.auth.id)"
)

// Collection names.
const (
	Orders          = "orders"
	Customers       = "customers"
	Products        = "products"
	Profiles        = "profiles"
	ContactMessages = "contact_messages"
)

// Owned lists the owner-scoped collections.
var Owned = []string{Orders, Customers, Products, Profiles}

var logoMimeTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

func init() {
	m.Register(Apply, func(app core.App) error {
		for _, name := range []string{ContactMessages, Profiles, Orders, Products, Customers} {
			col, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(col); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply creates any missing collection. It is safe to run against a
// database that already has some of them.
//
//nolint:funlen // Schema definitions are necessarily long.
func Apply(app core.App) error {
	users, err := app.FindCollectionByNameOrId("users")
	if err != nil {
		return err
	}

	owned := func(name string, fields ...core.Field) error {
		if _, err := app.FindCollectionByNameOrId(name); err == nil {
			return nil
		}
		col := core.NewBaseCollection(name)
		col.ListRule = types.Pointer(OwnerRule)
		col.ViewRule = types.Pointer(OwnerRule)
		col.CreateRule = types.Pointer(CreateRule)
		col.UpdateRule = types.Pointer(UpdateRule)
		col.DeleteRule = types.Pointer(OwnerRule)
		col.Fields.Add(&core.RelationField{
			Name:          "owner",
			CollectionId:  users.Id,
			MaxSelect:     1,
			Required:      true,
			CascadeDelete: true,
		})
		col.Fields.Add(fields...)
		col.Fields.Add(
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		col.AddIndex("idx_"+name+"_owner", false, "owner", "")
		if name == Profiles {
			col.AddIndex("idx_profiles_owner_unique", true, "owner", "")
		}
		return app.Save(col)
	}

	if err := owned(Customers,
		&core.TextField{Name: "name", Required: true, Max: 200},
		&core.TextField{Name: "phone", Max: 50},
		&core.TextField{Name: "handle", Max: 100},
		&core.TextField{Name: "source", Max: 50},
		&core.TextField{Name: "notes", Max: 5000},
		&core.NumberField{Name: "lifetime_value"},
		&core.NumberField{Name: "order_count", OnlyInt: true},
		&core.NumberField{Name: "repeat_orders", OnlyInt: true},
		&core.TextField{Name: "last_order_number"},
		&core.DateField{Name: "last_order_at"},
	); err != nil {
		return err
	}

	if err := owned(Products,
		&core.TextField{Name: "name", Required: true, Max: 200},
		&core.NumberField{Name: "price"},
		&core.NumberField{Name: "quantity", OnlyInt: true},
		&core.TextField{Name: "category", Max: 100},
		&core.TextField{Name: "sku", Max: 100},
		&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"Active", "Inactive", "Discontinued"}},
		&core.TextField{Name: "description", Max: 5000},
		&core.JSONField{Name: "tags"},
		&core.NumberField{Name: "total_sold", OnlyInt: true},
	); err != nil {
		return err
	}

	if err := owned(Orders,
		&core.TextField{Name: "number", Required: true, Max: 50},
		&core.JSONField{Name: "lines"},
		&core.NumberField{Name: "total"},
		&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"Pending", "Processing", "Completed", "Cancelled"}},
		&core.SelectField{Name: "payment_status", MaxSelect: 1, Values: []string{"Unpaid", "Paid", "Failed", "Refunded"}},
		&core.TextField{Name: "payment_type", Max: 50},
		&core.TextField{Name: "customer", Max: 50},
		&core.TextField{Name: "customer_name", Max: 200},
		&core.TextField{Name: "customer_phone", Max: 50},
		&core.TextField{Name: "customer_handle", Max: 100},
		&core.TextField{Name: "notes", Max: 5000},
		&core.TextField{Name: "source", Max: 50},
	); err != nil {
		return err
	}

	if err := owned(Profiles,
		&core.TextField{Name: "business_name", Max: 200},
		&core.TextField{Name: "owner_name", Max: 200},
		&core.TextField{Name: "email", Max: 200},
		&core.TextField{Name: "phone", Max: 50},
		&core.TextField{Name: "instagram", Max: 100},
		&core.TextField{Name: "whatsapp", Max: 50},
		&core.TextField{Name: "address", Max: 1000},
		&core.FileField{Name: "logo", MaxSelect: 1, MaxSize: 2 << 20, MimeTypes: logoMimeTypes},
	); err != nil {
		return err
	}

	// contact_messages has no API rules: only superusers and the relay
	// route can touch it.
	if _, err := app.FindCollectionByNameOrId(ContactMessages); err != nil {
		col := core.NewBaseCollection(ContactMessages)
		col.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.EmailField{Name: "email", Required: true},
			&core.TextField{Name: "message", Required: true, Max: 5000},
			&core.TextField{Name: "ip", Max: 64},
			&core.BoolField{Name: "delivered"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		if err := app.Save(col); err != nil {
			return err
		}
	}
	return nil
}
