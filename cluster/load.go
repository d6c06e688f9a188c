package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	"k8s.io/apimachinery/pkg/types"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/tofarr/mockernetes/storage"
	typesv1 "github.com/tofarr/mockernetes/types/v1"
)

// InitialState seeds a cluster in bulk. Manifests hold YAML or JSON
// documents, possibly multi-document; Objects are already-constructed
// typed or unstructured objects.
type InitialState struct {
	Namespaces []string
	Objects    []storage.Object
	Manifests  [][]byte
}

// Load creates the initial state in dependency order: namespaces first,
// then everything else topologically sorted so owners are stored before
// their dependents. Controllers run once over the whole batch at the end,
// so a loaded Deployment ends the call with its ReplicaSet and pods in
// place.
func (c *Cluster) Load(ctx context.Context, state InitialState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	objs := make([]storage.Object, 0, len(state.Objects))
	for _, obj := range state.Objects {
		objs = append(objs, obj)
	}
	decoded, err := c.decodeManifests(state.Manifests)
	if err != nil {
		return err
	}
	objs = append(objs, decoded...)

	var namespaces []storage.Object
	var rest []storage.Object
	for _, name := range state.Namespaces {
		namespaces = append(namespaces, typesv1.NewNamespace(name))
	}
	for _, obj := range objs {
		gvk, err := storage.GVKFor(c.scheme, obj)
		if err != nil {
			return apierrors.NewBadRequest(err.Error())
		}
		if gvk == typesv1.NamespaceGVK {
			namespaces = append(namespaces, obj)
		} else {
			rest = append(rest, obj)
		}
	}

	for _, ns := range namespaces {
		if _, _, err := c.createLocked(ctx, ns); err != nil {
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("loading namespace %s: %w", ns.GetName(), err)
		}
	}

	for _, obj := range sortByOwnership(rest) {
		gvk, _, err := c.createLocked(ctx, obj)
		if err != nil {
			return fmt.Errorf("loading %s %s/%s: %w", gvk.Kind, obj.GetNamespace(), obj.GetName(), err)
		}
	}

	return c.sync(ctx)
}

// Dump serializes every stored object as a multi-document YAML manifest.
// Objects are ordered by kind, namespace and name, so the output is
// deterministic and suitable for golden files or feeding back into Load.
func (c *Cluster) Dump(ctx context.Context) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	objs := c.store.Snapshot()
	sort.Slice(objs, func(i, j int) bool {
		gi := objs[i].GetObjectKind().GroupVersionKind().Kind
		gj := objs[j].GetObjectKind().GroupVersionKind().Kind
		if gi != gj {
			return gi < gj
		}
		return storage.KeyFromObject(objs[i]).String() < storage.KeyFromObject(objs[j]).String()
	})

	var buf bytes.Buffer
	for _, obj := range objs {
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
		}
		buf.WriteString("---\n")
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// decodeManifests turns raw YAML or JSON documents into objects. Kinds the
// scheme knows come back typed; anything else falls back to unstructured
// so custom kinds load the same way.
func (c *Cluster) decodeManifests(manifests [][]byte) ([]storage.Object, error) {
	codecs := serializer.NewCodecFactory(c.scheme)
	decoder := codecs.UniversalDeserializer()

	var out []storage.Object
	for i, manifest := range manifests {
		reader := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifest), 4096)
		for {
			var raw json.RawMessage
			if err := reader.Decode(&raw); err != nil {
				if err == io.EOF {
					break
				}
				return nil, apierrors.NewBadRequest(fmt.Sprintf("manifest %d: %v", i, err))
			}
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}

			obj, _, err := decoder.Decode(raw, nil, nil)
			if err != nil {
				u := &unstructured.Unstructured{}
				if uerr := json.Unmarshal(raw, &u.Object); uerr != nil {
					return nil, apierrors.NewBadRequest(fmt.Sprintf("manifest %d: %v", i, err))
				}
				if u.GetKind() == "" {
					return nil, apierrors.NewBadRequest(fmt.Sprintf("manifest %d: document has no kind", i))
				}
				out = append(out, u)
				continue
			}
			stored, ok := obj.(storage.Object)
			if !ok {
				return nil, apierrors.NewBadRequest(fmt.Sprintf("manifest %d: %T carries no object metadata", i, obj))
			}
			out = append(out, stored)
		}
	}
	return out, nil
}

// sortByOwnership orders objects so every owner precedes its dependents.
// Only references resolvable by UID within the batch constrain the order;
// ties break on kind, namespace and name so loads are deterministic.
func sortByOwnership(objs []storage.Object) []storage.Object {
	sort.SliceStable(objs, func(i, j int) bool {
		gi := objs[i].GetObjectKind().GroupVersionKind().Kind
		gj := objs[j].GetObjectKind().GroupVersionKind().Kind
		if gi != gj {
			return gi < gj
		}
		ki := storage.KeyFromObject(objs[i])
		kj := storage.KeyFromObject(objs[j])
		return ki.String() < kj.String()
	})

	byUID := make(map[types.UID]int, len(objs))
	for i, obj := range objs {
		if uid := obj.GetUID(); uid != "" {
			byUID[uid] = i
		}
	}

	adj := make(map[int][]int, len(objs))
	indegree := make([]int, len(objs))
	for i, obj := range objs {
		for _, ref := range obj.GetOwnerReferences() {
			owner, ok := byUID[ref.UID]
			if !ok || owner == i {
				continue
			}
			adj[owner] = append(adj[owner], i)
			indegree[i]++
		}
	}

	queue := make([]int, 0, len(objs))
	for i := range objs {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]storage.Object, 0, len(objs))
	emitted := make([]bool, len(objs))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		ordered = append(ordered, objs[i])
		emitted[i] = true
		for _, dep := range adj[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Anything left sits on a reference cycle; append it and let the
	// write-time cycle check reject it with a useful error.
	for i := range objs {
		if !emitted[i] {
			ordered = append(ordered, objs[i])
		}
	}
	return ordered
}
