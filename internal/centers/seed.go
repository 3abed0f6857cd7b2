package centers

import (
	"context"
)

type seedUnit struct {
	Name    string
	Address string
	Phone   string
	Type    string
	Label   string
	Lat     float64
	Lon     float64
}

// Baseline directory of Nicaraguan hospitals and health centers. Coordinates
// were taken from the public MINSA directory.
var nicaraguaUnits = []seedUnit{
	{
		Name:    "Hospital Metropolitano Vivian Pellas",
		Address: "Carretera a Masaya Km 9.8, Managua",
		Phone:   "+505 2255-6900",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     12.1218, Lon: -86.2705,
	},
	{
		Name:    "Hospital Escuela Antonio Lenín Fonseca",
		Address: "Barrio Las Brisas, Managua",
		Phone:   "+505 2266-1192",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     12.1437, Lon: -86.2736,
	},
	{
		Name:    "Hospital Dr. Roberto Calderón Gutiérrez",
		Address: "Barrio Santa Rosa, Managua",
		Phone:   "+505 2249-0701",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     12.1106, Lon: -86.2599,
	},
	{
		Name:    "Centro de Salud Sócrates Flores Vivas",
		Address: "Barrio Monseñor Lezcano, Managua",
		Phone:   "+505 2266-0200",
		Type:    "center",
		Label:   "Atención primaria",
		Lat:     12.1048, Lon: -86.2522,
	},
	{
		Name:    "Hospital Escuela Oscar Danilo Rosales Argüello",
		Address: "De la iglesia San Juan 1c al oeste, León",
		Phone:   "+505 2311-6990",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     12.4356, Lon: -86.8796,
	},
	{
		Name:    "Hospital Amistad Japón-Nicaragua",
		Address: "Carretera Granada-Masaya Km 45, Granada",
		Phone:   "+505 2552-7185",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     11.9305, Lon: -85.9562,
	},
	{
		Name:    "Hospital Humberto Alvarado Vásquez",
		Address: "Barrio San Juan, Masaya",
		Phone:   "+505 2522-2778",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     11.9752, Lon: -86.0940,
	},
	{
		Name:    "Hospital Regional César Amador Molina",
		Address: "Barrio El Progreso, Matagalpa",
		Phone:   "+505 2772-2081",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     12.9272, Lon: -85.9170,
	},
	{
		Name:    "Hospital Regional Escuela San Juan de Dios",
		Address: "Salida sur, Estelí",
		Phone:   "+505 2713-6300",
		Type:    "hospital",
		Label:   "Sede principal",
		Lat:     13.0900, Lon: -86.3530,
	},
	{
		Name:    "Centro de Salud Altagracia",
		Address: "Barrio Altagracia, Managua",
		Phone:   "+505 2265-0047",
		Type:    "center",
		Label:   "Atención primaria",
		Lat:     12.1399, Lon: -86.2784,
	},
	{
		Name:    "Centro de Salud Villa Libertad",
		Address: "Villa Libertad, Managua",
		Phone:   "+505 2289-4710",
		Type:    "center",
		Label:   "Atención primaria",
		Lat:     12.1126, Lon: -86.2098,
	},
}

// SeedNicaraguaOnce loads the baseline directory on an empty table. Any
// existing unit row means a previous boot (or an operator) already populated
// the directory, so the seed is skipped entirely.
func (r *Repo) SeedNicaraguaOnce(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&HealthUnit{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, s := range nicaraguaUnits {
		unitID, err := r.UpsertUnit(ctx, &HealthUnit{
			Name:    s.Name,
			Address: s.Address,
			Phone:   s.Phone,
			Type:    s.Type,
		})
		if err != nil {
			return err
		}
		lat, lon := s.Lat, s.Lon
		if err := r.UpsertLocation(ctx, &ClinicLocation{
			UnitID: unitID,
			Label:  s.Label,
			Lat:    &lat,
			Lon:    &lon,
			Status: StatusActive,
		}); err != nil {
			return err
		}
	}
	r.log.Info("seeded health center directory", "units", len(nicaraguaUnits))
	return nil
}
