package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/config"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/beds"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/orders"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/vitals"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/sandbox"
)

// seedActor is recorded as the author of every seeded change.
var seedActor = &auth.Actor{ID: "seed", Name: "Demo seeder", Role: auth.RoleAdmin}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo ward with beds and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := sandbox.DefaultSeedConfig()
			sc.PatientCount, _ = cmd.Flags().GetInt("patients")
			sc.BedsPerWard, _ = cmd.Flags().GetInt("beds-per-ward")
			sc.Seed, _ = cmd.Flags().GetInt64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			res, seedErr := seedWard(ctx, a.svc, sc)

			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.close(closeCtx); err != nil && seedErr == nil {
				seedErr = err
			}
			if seedErr != nil {
				return seedErr
			}
			fmt.Printf("Seeded %d bed(s), %d patient(s), %d vitals set(s), %d order(s); %d patient(s) placed in %s.\n",
				res.Beds, res.Patients, res.Vitals, res.Orders, res.Assigned, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("patients", 12, "Number of demo patients")
	cmd.Flags().Int("beds-per-ward", 8, "Beds created in each ward")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 picks one from the clock")
	return cmd
}

// seedWard feeds a generated plan through the services so every record is
// versioned and audited like real input.
func seedWard(ctx context.Context, svc services, sc sandbox.SeedConfig) (*sandbox.SeedResult, error) {
	start := time.Now()
	plan, err := sandbox.NewSeeder(sc).Plan()
	if err != nil {
		return nil, err
	}
	ctx = auth.ContextWithActor(ctx, seedActor)
	res := &sandbox.SeedResult{}

	bedIDs := make([]string, len(plan.Beds))
	for i, b := range plan.Beds {
		doc, err := svc.beds.CreateBed(ctx, beds.CreateInput{Ward: b.Ward, Label: b.Label})
		if err != nil {
			return res, fmt.Errorf("create bed %s: %w", b.Label, err)
		}
		bedIDs[i] = doc.Bed.ID
		res.Beds++
	}

	for _, dp := range plan.Patients {
		p, err := svc.patients.Register(ctx, patient.RegisterInput{
			Name:           dp.Name,
			Age:            dp.Age,
			Gender:         dp.Gender,
			Phone:          dp.Phone,
			Address:        dp.Address,
			ChiefComplaint: dp.ChiefComplaint,
		})
		if err != nil {
			return res, fmt.Errorf("register %s: %w", dp.Name, err)
		}
		res.Patients++

		if dp.Stage >= sandbox.StageTriaged {
			if _, err := svc.patients.SetTriage(ctx, p.ID, patient.TriageInput{
				Level:   patient.TriageLevel(dp.TriageLevel),
				Reasons: dp.TriageReasons,
			}); err != nil {
				return res, fmt.Errorf("triage %s: %w", p.ID, err)
			}
		}
		for _, v := range dp.Vitals {
			if _, err := svc.vitals.AddVitalsRecord(ctx, p.ID, vitals.AddInput{
				Measurements: measurements(v),
				Observations: v.Observations,
				Source:       "seed",
			}); err != nil {
				return res, fmt.Errorf("vitals for %s: %w", p.ID, err)
			}
			res.Vitals++
		}
		if dp.Bed >= 0 {
			if _, err := svc.beds.AssignBed(ctx, bedIDs[dp.Bed], p.ID); err != nil {
				return res, fmt.Errorf("assign bed to %s: %w", p.ID, err)
			}
			res.Assigned++
		}
		if dp.Stage >= sandbox.StageInTreatment {
			if _, err := svc.patients.StartTreatment(ctx, p.ID); err != nil {
				return res, fmt.Errorf("start treatment for %s: %w", p.ID, err)
			}
			if _, err := svc.patients.SetActiveProblems(ctx, p.ID, dp.Problems); err != nil {
				return res, fmt.Errorf("problems for %s: %w", p.ID, err)
			}
			for _, o := range dp.Orders {
				if _, err := svc.orders.AddOrder(ctx, p.ID, orders.AddOrderInput{
					Category: patient.OrderCategory(o.Category),
					Label:    o.Label,
					Priority: patient.OrderPriority(o.Priority),
				}); err != nil {
					return res, fmt.Errorf("order for %s: %w", p.ID, err)
				}
				res.Orders++
			}
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

func measurements(v sandbox.Vitals) patient.Measurements {
	var m patient.Measurements
	set := func(dst **int, n int) {
		if n != 0 {
			*dst = &n
		}
	}
	set(&m.PulseBPM, v.Pulse)
	set(&m.SystolicBP, v.Systolic)
	set(&m.DiastolicBP, v.Diastolic)
	set(&m.RespiratoryRate, v.RespRate)
	set(&m.SpO2, v.SpO2)
	if v.TemperatureC != 0 {
		t := v.TemperatureC
		m.TemperatureC = &t
	}
	return m
}
