package dataset

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type Size struct {
	Providers     int
	Materials     int
	Orders        int
	MaxOrderLines int
}

func DefaultSize() Size {
	return Size{Providers: 12, Materials: 20, Orders: 150, MaxOrderLines: 4}
}

type Generator struct {
	rnd  *rand.Rand
	from time.Time
	days int
}

// NewGenerator returns a deterministic generator: the same seed and window
// always yield the same rows. Order dates fall in [from, from+days).
func NewGenerator(seed int64, from time.Time, days int) *Generator {
	if days <= 0 {
		days = 365
	}
	return &Generator{
		rnd:  rand.New(rand.NewSource(seed)),
		from: from.UTC(),
		days: days,
	}
}

func (g *Generator) Generate(size Size) (Data, error) {
	if size.Providers <= 0 || size.Materials <= 0 {
		return Data{}, fmt.Errorf("providers and materials must be > 0")
	}
	if size.Orders < 0 {
		return Data{}, fmt.Errorf("orders must be >= 0")
	}
	if size.MaxOrderLines <= 0 {
		size.MaxOrderLines = 1
	}

	data := Data{
		Proveedores: make([]Proveedor, 0, size.Providers),
		Materiales:  make([]Material, 0, size.Materials),
		Pedidos:     make([]Pedido, 0, size.Orders),
	}

	for i := 1; i <= size.Providers; i++ {
		name := fmt.Sprintf("%s %s", pickOne(g.rnd, providerPrefixes), pickOne(g.rnd, providerSuffixes))
		data.Proveedores = append(data.Proveedores, Proveedor{
			ID:    int32(i),
			Name:  name,
			FVal:  DaysSinceEpoch(g.randomDate().AddDate(1, 0, 0)),
			Email: fmt.Sprintf("contacto%d@%s.example", i, slug(name)),
			Phone: fmt.Sprintf("+34 9%02d %03d %03d", g.rnd.Intn(100), g.rnd.Intn(1000), g.rnd.Intn(1000)),
		})
	}

	for i := 1; i <= size.Materials; i++ {
		data.Materiales = append(data.Materiales, Material{
			ID:      int32(i),
			Name:    fmt.Sprintf("%s %d", pickOne(g.rnd, materialNames), i),
			UnPrice: int32(1 + g.rnd.Intn(500)),
		})
	}

	for i := 1; i <= size.Orders; i++ {
		order := Pedido{
			NumPed: int32(i),
			IDProv: int32(1 + g.rnd.Intn(size.Providers)),
			Fecha:  DaysSinceEpoch(g.randomDate()),
		}
		data.Pedidos = append(data.Pedidos, order)

		lines := 1 + g.rnd.Intn(size.MaxOrderLines)
		used := map[int32]bool{}
		for l := 0; l < lines; l++ {
			materialID := int32(1 + g.rnd.Intn(size.Materials))
			if used[materialID] {
				continue
			}
			used[materialID] = true
			data.PedidoMats = append(data.PedidoMats, PedidoMat{
				IDPed:    order.NumPed,
				IDMat:    materialID,
				Cantidad: int32(1 + g.rnd.Intn(100)),
			})
		}
	}

	return data, nil
}

func (g *Generator) randomDate() time.Time {
	return g.from.AddDate(0, 0, g.rnd.Intn(g.days))
}

var (
	providerPrefixes = []string{"Aceros", "Suministros", "Maderas", "Plasticos", "Quimicas", "Electro", "Textiles", "Herrajes"}
	providerSuffixes = []string{"del Norte", "Iberica", "Levante", "Global", "Hermanos", "Industrial"}
	materialNames    = []string{"Tornillo", "Tuerca", "Tablero", "Cable", "Pintura", "Tubo", "Chapa", "Junta", "Valvula", "Sensor"}
)

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func slug(value string) string {
	return strings.ToLower(strings.ReplaceAll(value, " ", "-"))
}
