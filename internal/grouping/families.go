package grouping

import "fmt"

// Family is a predefined set of column names that always collapse under one label.
type Family struct {
	Name    string
	Members []string
}

// DefaultFamilies returns the predefined families in priority order.
func DefaultFamilies() []Family {
	stock := []string{
		"Stock verwerken?",
		"Minimum voorraad (ja/nee)",
		"Minimum voorraad (aantal)",
		"Minimum bestelhoeveelheid",
		"Is beginstock",
	}
	for i := 1; i <= 9; i++ {
		stock = append(stock,
			fmt.Sprintf("Voorraad locatie %d", i),
			fmt.Sprintf("Voorraad locatie %d toevoegen", i),
		)
	}

	return []Family{
		{
			Name: "Intrastat",
			Members: []string{
				"Intrastat, lidstaat van herkomst",
				"Intrastat, standaard gewest",
				"Intrastat, goederencode",
				"Intrastat, gewicht per eenheid",
				"Intrastat, land van oorsprong",
				"intrastat-excnt",
				"intrastat-extreg",
				"intrastat-extgo",
				"intrastat-exweight",
				"intrastat-excntori",
			},
		},
		{
			Name:    "Taxen",
			Members: []string{"Recupel", "Auvibel", "Bebat", "Reprobel", "Accijnzen", "Ecoboni"},
		},
		{
			Name:    "Stock",
			Members: stock,
		},
	}
}

func (f Family) memberSet() map[string]struct{} {
	set := make(map[string]struct{}, len(f.Members))
	for _, m := range f.Members {
		set[m] = struct{}{}
	}
	return set
}
