package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Mock answers every prompt from a small canned corpus of markdown
// replies after a randomized delay, simulating network latency without
// any external service.
type Mock struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock builds a mock provider with the given latency bounds. Pass
// zero for both to answer immediately (tests do).
func NewMock(minDelay, maxDelay time.Duration) *Mock {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Mock{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Mock) Respond(ctx context.Context, prompt string) (string, error) {
	if delay := m.delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	m.mu.Lock()
	reply := mockReplies[m.rng.Intn(len(mockReplies))]
	m.mu.Unlock()
	return reply, nil
}

func (m *Mock) delay() time.Duration {
	if m.maxDelay <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxDelay == m.minDelay {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(m.maxDelay-m.minDelay)))
}

var mockReplies = []string{
	"Here's a TypeScript example that demonstrates async/await patterns:\n\n" +
		"```typescript\n" +
		"interface User {\n  id: number;\n  name: string;\n  email: string;\n}\n\n" +
		"async function fetchUser(id: number): Promise<User> {\n" +
		"  const response = await fetch(`/api/users/${id}`);\n" +
		"  if (!response.ok) {\n    throw new Error('User not found');\n  }\n" +
		"  return response.json();\n}\n\n" +
		"// Usage\nconst user = await fetchUser(1);\nconsole.log(user.name);\n" +
		"```\n\n" +
		"Key points about this code:\n" +
		"- The function is marked as `async` to allow await syntax\n" +
		"- `Promise<User>` indicates the return type\n" +
		"- Error handling with try/catch is recommended\n" +
		"- Always check `response.ok` before parsing JSON",

	"I can help you with that! Here's a Python function to calculate factorial:\n\n" +
		"```python\n" +
		"def factorial(n: int) -> int:\n" +
		"    \"\"\"Calculate the factorial of a positive integer.\"\"\"\n" +
		"    if n < 0:\n" +
		"        raise ValueError(\"Factorial is not defined for negative numbers\")\n" +
		"    if n == 0 or n == 1:\n        return 1\n" +
		"    return n * factorial(n - 1)\n\n" +
		"# Example usage\nprint(factorial(5))  # Output: 120\n" +
		"```\n\n" +
		"Some important notes:\n" +
		"- This uses **recursion** to solve the problem\n" +
		"- The base case handles 0 and 1\n" +
		"- Try/catch blocks can handle errors elegantly\n" +
		"- For large numbers, consider using iteration instead",

	"Great question! Let me explain the concept with a simple example:\n\n" +
		"When working with arrays in JavaScript, you often need to transform data. " +
		"The `map()` function is perfect for this.\n\n" +
		"```javascript\n" +
		"const numbers = [1, 2, 3, 4, 5];\n\n" +
		"const doubled = numbers.map(num => num * 2);\n" +
		"console.log(doubled); // [2, 4, 6, 8, 10]\n\n" +
		"const withIndex = numbers.map((num, index) => ({\n" +
		"  value: num,\n  position: index\n}));\n" +
		"```\n\n" +
		"Useful array methods:\n" +
		"- **map()**: Transform each element\n" +
		"- **filter()**: Select elements that match a condition\n" +
		"- **reduce()**: Combine all elements into a single value\n" +
		"- **find()**: Get the first matching element",
}
