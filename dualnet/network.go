// Package dual implements the dual-head (value + policy) residual
// convolutional network: an input convolution, a stack of residual blocks,
// and a value head / policy head sharing the resulting trunk.
package dual

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network is one instance of the dual-head network's computational graph,
// sized for a fixed batch (cfg.BatchSize). Each binary builds one: sized for
// self-play's B workers, for the trainer's minibatch M, or batch-of-1 for
// competitive single-position search.
type Network struct {
	conf Config

	g  *G.ExprGraph
	in *G.Node // [B, Features, Height, Width]

	value        *G.Node // [B, 1]
	policyLogits *G.Node // [B, ActionSpace]

	learnables G.Nodes
	vm         G.VM

	// Present only when !conf.FwdOnly: the loss graph used by Train.
	z      *G.Node // [B, 1] target outcome
	pi     *G.Node // [B, ActionSpace] target visit distribution
	loss   *G.Node // scalar
	solver G.Solver
	trainVM G.VM
}

// New builds the network's computational graph per cfg. When cfg.FwdOnly is
// false, a loss node and SGD solver are also wired up for Train.
func New(cfg Config) (*Network, error) {
	if !cfg.IsValid() {
		return nil, errors.New("dual: invalid config")
	}

	g := G.NewGraph()
	var learnables G.Nodes

	in := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(cfg.BatchSize, cfg.Features, cfg.Height, cfg.Width), G.WithName("input"))

	x, err := convBNReLU(g, in, cfg.Features, cfg.K, "input_conv", &learnables)
	if err != nil {
		return nil, err
	}

	for i := 0; i < cfg.SharedLayers; i++ {
		if x, err = residualBlock(g, x, cfg.K, fmt.Sprintf("res%d", i), &learnables); err != nil {
			return nil, err
		}
	}

	value, err := valueHead(g, x, cfg.Height, cfg.Width, &learnables)
	if err != nil {
		return nil, err
	}
	policy, err := policyHead(g, x, cfg.Height, cfg.Width, cfg.ActionSpace, &learnables)
	if err != nil {
		return nil, err
	}

	n := &Network{
		conf:         cfg,
		g:            g,
		in:           in,
		value:        value,
		policyLogits: policy,
		learnables:   learnables,
	}

	if !cfg.FwdOnly {
		if err := n.wireLoss(); err != nil {
			return nil, err
		}
	}

	n.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return n, nil
}

func (n *Network) wireLoss() error {
	g := n.g
	cfg := n.conf

	z := G.NewMatrix(g, tensor.Float32, G.WithShape(cfg.BatchSize, 1), G.WithName("z"))
	pi := G.NewMatrix(g, tensor.Float32, G.WithShape(cfg.BatchSize, cfg.ActionSpace), G.WithName("pi"))

	diff, err := G.Sub(z, n.value)
	if err != nil {
		return errors.Wrap(err, "dual: value residual")
	}
	sq, err := G.Square(diff)
	if err != nil {
		return errors.Wrap(err, "dual: value square")
	}
	valueLoss, err := G.Sum(sq)
	if err != nil {
		return errors.Wrap(err, "dual: value loss sum")
	}

	probs, err := G.SoftMax(n.policyLogits, 1)
	if err != nil {
		return errors.Wrap(err, "dual: policy softmax")
	}
	logProbs, err := G.Log(probs)
	if err != nil {
		return errors.Wrap(err, "dual: policy log")
	}
	ce, err := G.HadamardProd(pi, logProbs)
	if err != nil {
		return errors.Wrap(err, "dual: cross entropy product")
	}
	policyLoss, err := G.Sum(ce)
	if err != nil {
		return errors.Wrap(err, "dual: policy loss sum")
	}
	policyLoss, err = G.Neg(policyLoss)
	if err != nil {
		return errors.Wrap(err, "dual: negate policy loss")
	}

	loss, err := G.Add(valueLoss, policyLoss)
	if err != nil {
		return errors.Wrap(err, "dual: combine loss")
	}

	if _, err := G.Grad(loss, n.learnables...); err != nil {
		return errors.Wrap(err, "dual: compute gradient")
	}

	n.z, n.pi, n.loss = z, pi, loss
	n.solver = G.NewVanillaSolver(G.WithLearnRate(1e-2), G.WithL2Reg(1e-4), G.WithMomentum(0.9))
	n.trainVM = G.NewTapeMachine(g, G.BindDualValues(n.learnables...))
	return nil
}

// Forward runs one batched forward pass. images must be exactly
// cfg.BatchSize*cfg.Features*cfg.Height*cfg.Width float32s in NCHW order.
// Returns raw value outputs (tanh already applied) and raw policy logits
// (softmax NOT applied — see the legal-policy projection in infer.go).
func (n *Network) Forward(images []float32) (values, policyLogits []float32, err error) {
	cfg := n.conf
	t := tensor.New(tensor.WithShape(cfg.BatchSize, cfg.Features, cfg.Height, cfg.Width), tensor.WithBacking(images))
	if err := G.Let(n.in, t); err != nil {
		return nil, nil, errors.Wrap(err, "dual: bind input")
	}
	if err := n.vm.RunAll(); err != nil {
		return nil, nil, errors.Wrap(err, "dual: run forward pass")
	}
	defer n.vm.Reset()

	return valuesOf(n.value), valuesOf(n.policyLogits), nil
}

// Train runs one SGD step of the combined value+policy loss (§4.1) over a
// minibatch of exactly cfg.BatchSize examples, returning the scalar loss.
func (n *Network) Train(images, z, pi []float32) (loss float32, err error) {
	if n.conf.FwdOnly {
		return 0, errors.New("dual: network was built fwd-only, cannot train")
	}
	cfg := n.conf

	imgT := tensor.New(tensor.WithShape(cfg.BatchSize, cfg.Features, cfg.Height, cfg.Width), tensor.WithBacking(images))
	zT := tensor.New(tensor.WithShape(cfg.BatchSize, 1), tensor.WithBacking(z))
	piT := tensor.New(tensor.WithShape(cfg.BatchSize, cfg.ActionSpace), tensor.WithBacking(pi))

	if err := G.Let(n.in, imgT); err != nil {
		return 0, errors.Wrap(err, "dual: bind train input")
	}
	if err := G.Let(n.z, zT); err != nil {
		return 0, errors.Wrap(err, "dual: bind target value")
	}
	if err := G.Let(n.pi, piT); err != nil {
		return 0, errors.Wrap(err, "dual: bind target policy")
	}

	if err := n.trainVM.RunAll(); err != nil {
		return 0, errors.Wrap(err, "dual: run training pass")
	}
	defer n.trainVM.Reset()

	if err := n.solver.Step(G.NodesToValueGrads(n.learnables)); err != nil {
		return 0, errors.Wrap(err, "dual: solver step")
	}

	lossVal := valuesOf(n.loss)
	if len(lossVal) == 0 {
		return 0, errors.New("dual: loss node produced no value")
	}
	return lossVal[0], nil
}

func valuesOf(node *G.Node) []float32 {
	v := node.Value()
	if v == nil {
		return nil
	}
	switch data := v.Data().(type) {
	case []float32:
		return data
	case float32:
		return []float32{data}
	default:
		return nil
	}
}

func convBNReLU(g *G.ExprGraph, x *G.Node, inCh, outCh int, name string, learnables *G.Nodes) (*G.Node, error) {
	filter := G.NewTensor(g, tensor.Float32, 4, G.WithShape(outCh, inCh, 3, 3),
		G.WithName(name+"_filter"), G.WithInit(G.GlorotN(1.0)))
	*learnables = append(*learnables, filter)

	conv, err := G.Conv2d(x, filter, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s conv", name)
	}
	bn, gamma, beta, _, err := G.BatchNorm(conv, nil, nil, 0.9, 1e-5)
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s batchnorm", name)
	}
	*learnables = append(*learnables, gamma, beta)
	return G.Rectify(bn)
}

func residualBlock(g *G.ExprGraph, x *G.Node, filters int, name string, learnables *G.Nodes) (*G.Node, error) {
	skip := x

	y, err := convBNReLU(g, x, filters, filters, name+"_conv1", learnables)
	if err != nil {
		return nil, err
	}

	filter2 := G.NewTensor(g, tensor.Float32, 4, G.WithShape(filters, filters, 3, 3),
		G.WithName(name+"_conv2_filter"), G.WithInit(G.GlorotN(1.0)))
	*learnables = append(*learnables, filter2)
	conv2, err := G.Conv2d(y, filter2, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s conv2", name)
	}
	bn2, gamma2, beta2, _, err := G.BatchNorm(conv2, nil, nil, 0.9, 1e-5)
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s bn2", name)
	}
	*learnables = append(*learnables, gamma2, beta2)

	sum, err := G.Add(skip, bn2)
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s skip add", name)
	}
	return G.Rectify(sum)
}

func dense(g *G.ExprGraph, in *G.Node, inDim, outDim int, name string, learnables *G.Nodes) (*G.Node, error) {
	w := G.NewMatrix(g, tensor.Float32, G.WithShape(inDim, outDim), G.WithName(name+"_w"), G.WithInit(G.GlorotN(1.0)))
	b := G.NewVector(g, tensor.Float32, G.WithShape(outDim), G.WithName(name+"_b"), G.WithInit(G.Zeroes()))
	*learnables = append(*learnables, w, b)

	out, err := G.Mul(in, w)
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s matmul", name)
	}
	out, err = G.BroadcastAdd(out, b, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrapf(err, "dual: %s bias add", name)
	}
	return out, nil
}

func valueHead(g *G.ExprGraph, trunk *G.Node, height, width int, learnables *G.Nodes) (*G.Node, error) {
	filters := trunk.Shape()[1]
	filter := G.NewTensor(g, tensor.Float32, 4, G.WithShape(1, filters, 1, 1),
		G.WithName("value_conv_filter"), G.WithInit(G.GlorotN(1.0)))
	*learnables = append(*learnables, filter)

	conv, err := G.Conv2d(trunk, filter, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrap(err, "dual: value conv")
	}
	bn, gamma, beta, _, err := G.BatchNorm(conv, nil, nil, 0.9, 1e-5)
	if err != nil {
		return nil, errors.Wrap(err, "dual: value batchnorm")
	}
	*learnables = append(*learnables, gamma, beta)
	relu, err := G.Rectify(bn)
	if err != nil {
		return nil, errors.Wrap(err, "dual: value relu")
	}

	batch := relu.Shape()[0]
	flat, err := G.Reshape(relu, tensor.Shape{batch, height * width})
	if err != nil {
		return nil, errors.Wrap(err, "dual: value flatten")
	}

	h1, err := dense(g, flat, height*width, 256, "value_fc1", learnables)
	if err != nil {
		return nil, err
	}
	h1, err = G.Rectify(h1)
	if err != nil {
		return nil, errors.Wrap(err, "dual: value fc1 relu")
	}

	out, err := dense(g, h1, 256, 1, "value_fc2", learnables)
	if err != nil {
		return nil, err
	}
	return G.Tanh(out)
}

func policyHead(g *G.ExprGraph, trunk *G.Node, height, width, actionSpace int, learnables *G.Nodes) (*G.Node, error) {
	filters := trunk.Shape()[1]
	filter := G.NewTensor(g, tensor.Float32, 4, G.WithShape(2, filters, 1, 1),
		G.WithName("policy_conv_filter"), G.WithInit(G.GlorotN(1.0)))
	*learnables = append(*learnables, filter)

	conv, err := G.Conv2d(trunk, filter, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrap(err, "dual: policy conv")
	}
	bn, gamma, beta, _, err := G.BatchNorm(conv, nil, nil, 0.9, 1e-5)
	if err != nil {
		return nil, errors.Wrap(err, "dual: policy batchnorm")
	}
	*learnables = append(*learnables, gamma, beta)
	relu, err := G.Rectify(bn)
	if err != nil {
		return nil, errors.Wrap(err, "dual: policy relu")
	}

	batch := relu.Shape()[0]
	flat, err := G.Reshape(relu, tensor.Shape{batch, 2 * height * width})
	if err != nil {
		return nil, errors.Wrap(err, "dual: policy flatten")
	}

	return dense(g, flat, 2*height*width, actionSpace, "policy_fc", learnables)
}
