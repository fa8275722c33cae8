package optim

import (
	"math"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
)

// Adam with bias correction folded into the step size.
type Adam struct {
	slots
	LR, Beta1, Beta2, Eps float64
}

func NewAdam(lr float64) *Adam {
	return &Adam{slots: newSlots("m", "v"), LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-7}
}

func (a *Adam) Name() string { return "adam" }

func (a *Adam) Apply(params []nn.Param) error {
	a.iterations++
	t := float64(a.iterations)
	lrT := a.LR * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))
	for _, p := range params {
		m, err := a.get("m", p)
		if err != nil {
			return err
		}
		v, err := a.get("v", p)
		if err != nil {
			return err
		}
		for i, row := range p.W {
			for j, w := range row {
				g := w.Grad
				m[i][j] = a.Beta1*m[i][j] + (1-a.Beta1)*g
				v[i][j] = a.Beta2*v[i][j] + (1-a.Beta2)*g*g
				w.Data -= lrT * m[i][j] / (math.Sqrt(v[i][j]) + a.Eps)
			}
		}
	}
	return nil
}

type RMSProp struct {
	slots
	LR, Rho, Eps float64
}

func NewRMSProp(lr float64) *RMSProp {
	return &RMSProp{slots: newSlots("rms"), LR: lr, Rho: 0.9, Eps: 1e-7}
}

func (r *RMSProp) Name() string { return "rmsprop" }

func (r *RMSProp) Apply(params []nn.Param) error {
	r.iterations++
	for _, p := range params {
		rms, err := r.get("rms", p)
		if err != nil {
			return err
		}
		for i, row := range p.W {
			for j, w := range row {
				g := w.Grad
				rms[i][j] = r.Rho*rms[i][j] + (1-r.Rho)*g*g
				w.Data -= r.LR * g / (math.Sqrt(rms[i][j]) + r.Eps)
			}
		}
	}
	return nil
}

type Momentum struct {
	slots
	LR, Mu float64
}

func NewMomentum(lr float64) *Momentum {
	return &Momentum{slots: newSlots("momentum"), LR: lr, Mu: 0.9}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Apply(params []nn.Param) error {
	m.iterations++
	for _, p := range params {
		vel, err := m.get("momentum", p)
		if err != nil {
			return err
		}
		for i, row := range p.W {
			for j, w := range row {
				vel[i][j] = m.Mu*vel[i][j] - m.LR*w.Grad
				w.Data += vel[i][j]
			}
		}
	}
	return nil
}

type SGD struct {
	slots
	LR float64
}

func NewSGD(lr float64) *SGD { return &SGD{slots: newSlots(), LR: lr} }

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) Apply(params []nn.Param) error {
	s.iterations++
	for _, p := range params {
		for _, row := range p.W {
			for _, w := range row {
				w.Data -= s.LR * w.Grad
			}
		}
	}
	return nil
}
