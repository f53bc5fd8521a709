package model

// Conf configures a bipartite model: one visible layer, one hidden layer.
type Conf struct {
	Visible LayerConf
	Hidden  LayerConf
}

// DefaultConf is a standard RBM: Bernoulli visible and hidden units.
func DefaultConf(visible, hidden int) Conf {
	return Conf{
		Visible: LayerConf{Kind: Bernoulli, Size: visible},
		Hidden:  LayerConf{Kind: Bernoulli, Size: hidden},
	}
}

// GaussianVisibleConf is a Gaussian RBM: real-valued visible units with the
// given variance, Bernoulli hidden units.
func GaussianVisibleConf(visible, hidden int, variance float64) Conf {
	return Conf{
		Visible: LayerConf{Kind: Gaussian, Size: visible, Variance: variance},
		Hidden:  LayerConf{Kind: Bernoulli, Size: hidden},
	}
}

// GaussianHiddenConf is a Hopfield-style model: Bernoulli visible units,
// Gaussian hidden units with the given variance.
func GaussianHiddenConf(visible, hidden int, variance float64) Conf {
	return Conf{
		Visible: LayerConf{Kind: Bernoulli, Size: visible},
		Hidden:  LayerConf{Kind: Gaussian, Size: hidden, Variance: variance},
	}
}

// IsValid reports whether the configuration can construct a model. New
// returns the precise reason when it cannot.
func (c Conf) IsValid() bool {
	_, err := New(c)
	return err == nil
}
