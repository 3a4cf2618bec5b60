package engine

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"hunt-server/internal/domain"
	"hunt-server/pkg/logger"
)

// ParseItem разбирает "MATERIAL[:amount]". Количество по умолчанию 1.
func ParseItem(s string) (domain.ItemStack, error) {
	material, amountStr, hasAmount := strings.Cut(strings.TrimSpace(s), ":")
	material = strings.ToUpper(strings.TrimSpace(material))
	if material == "" {
		return domain.ItemStack{}, fmt.Errorf("empty material in %q", s)
	}

	amount := 1
	if hasAmount {
		n, err := strconv.Atoi(strings.TrimSpace(amountStr))
		if err != nil || n <= 0 {
			return domain.ItemStack{}, fmt.Errorf("invalid amount in %q", s)
		}
		amount = n
	}
	return domain.ItemStack{Material: material, Amount: amount}, nil
}

// GenerateLoadout берет случайные ItemsPerCategory предметов из каждого пула
// (броня, расходники, оружие). Некорректные записи пропускаются.
func GenerateLoadout(rng *rand.Rand, cfg LoadoutConfig) []domain.ItemStack {
	var loadout []domain.ItemStack
	for _, pool := range [][]string{cfg.Armor, cfg.Items, cfg.Weapons} {
		loadout = append(loadout, pick(rng, pool, cfg.ItemsPerCategory)...)
	}
	return loadout
}

func pick(rng *rand.Rand, pool []string, n int) []domain.ItemStack {
	if n <= 0 {
		return nil
	}
	items := make([]domain.ItemStack, 0, len(pool))
	for _, raw := range pool {
		item, err := ParseItem(raw)
		if err != nil {
			logger.For("loadout").WithError(err).Warn("Skipping invalid loadout entry")
			continue
		}
		items = append(items, item)
	}

	rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	if n < len(items) {
		items = items[:n]
	}
	return items
}
