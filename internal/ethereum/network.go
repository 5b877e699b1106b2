package ethereum

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
)

const infuraURLTemplate = "https://%s.infura.io/v3/%s"

// DefaultNetwork is used when no network is named
const DefaultNetwork = "mainnet"

// knownChainIDs maps network names to their chain ids
var knownChainIDs = map[string]int64{
	"mainnet": 1,
	"sepolia": 11155111,
	"holesky": 17000,
}

// Network identifies a chain and the RPC endpoint used to reach it.
// ChainID 0 means "ask the endpoint" (custom networks from RPC_URLS).
type Network struct {
	Name    string
	ChainID int64
	RPCURL  string
}

// Networks resolves network names to endpoints
type Networks struct {
	rpcURLs   map[string]string
	infuraKey string
}

// NewNetworks builds a resolver. Explicit rpcURLs win over the Infura template.
func NewNetworks(rpcURLs map[string]string, infuraKey string) *Networks {
	urls := make(map[string]string, len(rpcURLs))
	for name, url := range rpcURLs {
		urls[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(url)
	}
	return &Networks{rpcURLs: urls, infuraKey: infuraKey}
}

// Resolve returns the network for name
func (n *Networks) Resolve(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	chainID, known := knownChainIDs[name]

	if url, ok := n.rpcURLs[name]; ok && url != "" {
		return Network{Name: name, ChainID: chainID, RPCURL: url}, nil
	}
	if known && n.infuraKey != "" {
		return Network{Name: name, ChainID: chainID, RPCURL: fmt.Sprintf(infuraURLTemplate, name, n.infuraKey)}, nil
	}
	if known {
		return Network{}, fmt.Errorf("%w: no RPC endpoint configured for %q (set RPC_URLS or INFURA_API_KEY)", model.ErrUnknownNetwork, name)
	}
	return Network{}, fmt.Errorf("%w: %q", model.ErrUnknownNetwork, name)
}

// Names lists every network that can be resolved, sorted
func (n *Networks) Names() []string {
	set := make(map[string]struct{})
	for name, url := range n.rpcURLs {
		if url != "" {
			set[name] = struct{}{}
		}
	}
	if n.infuraKey != "" {
		for name := range knownChainIDs {
			set[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
