package item

import (
	"strings"

	"github.com/dbsmedya/populous/internal/expr"
	"github.com/dbsmedya/populous/internal/generator"
	"github.com/dbsmedya/populous/internal/perrors"
)

// ParseStoreIn parses a blueprint item's store_in section: each key either
// names a global blueprint variable to append into ("foo"), or (prefixed
// "this.") a sibling item's per-row Store field to append into
// ("this.toto.foos"). The value in both cases is an expression, evaluated
// and appended once per row this item generates.
func (it *Item) ParseStoreIn(storeIn map[string]any) error {
	for key, rawValue := range storeIn {
		valueExpr, err := expr.Parse(rawValue)
		if err != nil {
			return err
		}

		if !strings.HasPrefix(key, "this.") {
			if _, ok := it.registry.GetVar(key); !ok {
				it.registry.SetVar(key, []any{})
			}
			it.StoreInGlobal[key] = valueExpr
			continue
		}

		rest := strings.TrimPrefix(key, "this.")
		targetItemName, targetField, ok := strings.Cut(rest, ".")
		if !ok {
			return perrors.ValidationItemf(it.Name,
				"store_in key %q must have the form 'this.<item>.<field>'", key)
		}

		targetItem, ok := it.registry.Item(targetItemName)
		if !ok {
			return perrors.ValidationItemf(it.Name,
				"error in 'store_in' section: the item %q does not exist", targetItemName)
		}

		if _, exists := targetItem.Fields.Get(targetField); !exists {
			if err := targetItem.AddField(targetField, "Store", generator.Params{}); err != nil {
				return err
			}
		}

		it.StoreInItem = append(it.StoreInItem, storeTarget{
			Item:  targetItemName,
			Field: targetField,
			Expr:  valueExpr,
		})
	}
	return nil
}
